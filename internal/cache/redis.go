// ============================================================================
// cache/redis.go - Redis-backed risk-report cache and recent-alert ring
// ============================================================================
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"solana-pool-sentinel/internal/constants"
	"solana-pool-sentinel/internal/models"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("not found in cache")

// ReportCache holds risk reports for a short TTL so duplicate lookups
// of the same mint within a processing window hit the cache.
type ReportCache interface {
	GetReport(ctx context.Context, mint models.MintAddress) (*models.RiskReport, error)
	PutReport(ctx context.Context, report *models.RiskReport) error
}

// AlertEntry is one delivered (or abandoned) alert, kept for the
// dashboard's recent-alerts view.
type AlertEntry struct {
	Signature string           `json:"signature"`
	Mint      string           `json:"mint"`
	Score     float64          `json:"score"`
	Level     models.RiskLevel `json:"level"`
	State     models.JobState  `json:"state"`
	SentAt    time.Time        `json:"sent_at"`
}

// RedisCache implements ReportCache and the recent-alert ring on redis.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache wraps an existing redis client.
func NewRedisCache(client redis.Cmdable, reportTTL time.Duration) (*RedisCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if reportTTL <= 0 {
		reportTTL = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: reportTTL}, nil
}

func reportKey(mint models.MintAddress) string {
	return constants.RedisKeyReportPrefix + mint.String()
}

// GetReport returns the cached report for mint, or ErrNotFound.
func (c *RedisCache) GetReport(ctx context.Context, mint models.MintAddress) (*models.RiskReport, error) {
	val, err := c.client.Get(ctx, reportKey(mint)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}

	var report models.RiskReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

// PutReport stores a report under the configured TTL.
func (c *RedisCache) PutReport(ctx context.Context, report *models.RiskReport) error {
	b, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := c.client.Set(ctx, reportKey(report.Mint), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("put report: %w", err)
	}
	return nil
}

// AddRecentAlert pushes an alert onto the ring, trimming to the cap.
func (c *RedisCache) AddRecentAlert(ctx context.Context, entry *AlertEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, constants.RedisKeyRecentAlerts, b)
	pipe.LTrim(ctx, constants.RedisKeyRecentAlerts, 0, constants.MaxRecentAlerts-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add recent alert: %w", err)
	}
	return nil
}

// GetRecentAlerts returns up to limit alerts, newest first.
func (c *RedisCache) GetRecentAlerts(ctx context.Context, limit int64) ([]*AlertEntry, error) {
	if limit < 1 || limit > constants.MaxRecentAlerts {
		limit = constants.MaxRecentAlerts
	}

	vals, err := c.client.LRange(ctx, constants.RedisKeyRecentAlerts, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}

	out := make([]*AlertEntry, 0, len(vals))
	for _, v := range vals {
		var entry AlertEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue
		}
		out = append(out, &entry)
	}
	return out, nil
}
