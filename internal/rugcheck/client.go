// Package rugcheck calls the external rug-check service and converts
// its token report into a RiskReport. Exhausted retries degrade to an
// unscored report instead of suppressing the event.
package rugcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"solana-pool-sentinel/internal/cache"
	"solana-pool-sentinel/internal/models"
	"solana-pool-sentinel/internal/ratelimit"
	"solana-pool-sentinel/internal/telemetry"

	"github.com/eapache/go-resiliency/breaker"
	"github.com/sirupsen/logrus"
)

// HTTPError is a non-2xx response from the rug-check API.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	b := strings.TrimSpace(string(e.Body))
	if b == "" {
		return fmt.Sprintf("rugcheck http %d", e.StatusCode)
	}
	return fmt.Sprintf("rugcheck http %d: %s", e.StatusCode, b)
}

// retryable reports whether the failure is worth another attempt.
// Timeouts, 5xx, and 429 are transient; other 4xx are permanent.
func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// Client is the risk-analysis client.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	limiter      *ratelimit.Limiter
	brk          *breaker.Breaker
	cache        cache.ReportCache
	maxAttempts  int
	retryBackoff time.Duration
	logger       *logrus.Logger
	collector    *telemetry.Collector
}

// Config holds configuration for the rug-check client.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	Limiter      *ratelimit.Limiter
	Cache        cache.ReportCache
	MaxAttempts  int
	RetryBackoff time.Duration
	// Breaker opens after BreakerThreshold consecutive failures and
	// probes again after BreakerCooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Logger           *logrus.Logger
	Collector        *telemetry.Collector
}

// NewClient creates a rug-check client.
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.rugcheck.xyz/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.BreakerThreshold < 1 {
		cfg.BreakerThreshold = 10
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		http:         &http.Client{Timeout: cfg.Timeout},
		limiter:      cfg.Limiter,
		brk:          breaker.New(cfg.BreakerThreshold, 1, cfg.BreakerCooldown),
		cache:        cfg.Cache,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		logger:       cfg.Logger,
		collector:    cfg.Collector,
	}
}

// Check returns the risk report for mint. Transient failures are
// retried with exponential backoff up to MaxAttempts; after that (or
// on a permanent API error) the unscored fallback is returned so the
// event still reaches notification.
func (c *Client) Check(ctx context.Context, mint models.MintAddress) (*models.RiskReport, error) {
	if c.cache != nil {
		if report, err := c.cache.GetReport(ctx, mint); err == nil {
			c.logger.WithField("mint", mint).Debug("risk report cache hit")
			return report, nil
		}
	}

	backoff := c.retryBackoff
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx, 1); err != nil {
				return nil, err
			}
		}

		var report *models.RiskReport
		err := c.brk.Run(func() error {
			var fetchErr error
			report, fetchErr = c.fetchReport(ctx, mint)
			return fetchErr
		})
		if err == nil {
			if c.cache != nil {
				if cacheErr := c.cache.PutReport(ctx, report); cacheErr != nil {
					c.logger.WithError(cacheErr).Warn("failed to cache risk report")
				}
			}
			return report, nil
		}

		lastErr = err
		if c.collector != nil {
			c.collector.APIError()
		}

		if err != breaker.ErrBreakerOpen && !retryable(err) {
			c.logger.WithFields(logrus.Fields{
				"mint":  mint,
				"error": err,
			}).Warn("rugcheck permanent failure, proceeding unscored")
			return models.UnscoredReport(mint), nil
		}

		c.logger.WithFields(logrus.Fields{
			"mint":    mint,
			"attempt": attempt,
			"error":   err,
		}).Debug("rugcheck attempt failed")
	}

	c.logger.WithFields(logrus.Fields{
		"mint":     mint,
		"attempts": c.maxAttempts,
		"error":    lastErr,
	}).Warn("rugcheck attempts exhausted, proceeding unscored")
	return models.UnscoredReport(mint), nil
}

// fetchReport performs one GET /tokens/{mint}/report call.
func (c *Client) fetchReport(ctx context.Context, mint models.MintAddress) (*models.RiskReport, error) {
	u := fmt.Sprintf("%s/tokens/%s/report", c.baseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: res.StatusCode, Body: body}
	}

	var out reportResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode rugcheck report: %w", err)
	}
	return out.toReport(mint), nil
}

// reportResponse mirrors the rug-check API token report.
type reportResponse struct {
	Score                float64 `json:"score"`
	Creator              string  `json:"creator"`
	TotalMarketLiquidity float64 `json:"totalMarketLiquidity"`
	MintAuthority        string  `json:"mintAuthority"`
	FreezeAuthority      string  `json:"freezeAuthority"`
	TopHolders           []struct {
		Address string  `json:"address"`
		Amount  float64 `json:"amount"`
	} `json:"topHolders"`
}

func (r *reportResponse) toReport(mint models.MintAddress) *models.RiskReport {
	report := &models.RiskReport{
		Mint:            mint,
		Score:           r.Score,
		Level:           models.ClassifyScore(r.Score),
		Liquidity:       r.TotalMarketLiquidity,
		Creator:         r.Creator,
		MintAuthority:   r.MintAuthority,
		FreezeAuthority: r.FreezeAuthority,
		Scored:          true,
	}
	if report.Creator == "" {
		report.Creator = "Unknown"
	}

	var total float64
	for _, h := range r.TopHolders {
		total += h.Amount
	}

	holders := make([]float64, len(r.TopHolders))
	for i, h := range r.TopHolders {
		holders[i] = h.Amount
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(holders)))
	if len(holders) > 10 {
		holders = holders[:10]
	}

	for _, amount := range holders {
		var pct float64
		if total > 0 {
			pct = amount / total * 100
		}
		report.TopHolders = append(report.TopHolders, pct)
		report.TopHoldersPct += pct
	}
	return report
}
