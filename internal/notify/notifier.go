// Package notify formats risk reports into operator alerts and
// delivers them over Telegram under a delivery rate limit.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"solana-pool-sentinel/internal/models"
	"solana-pool-sentinel/internal/ratelimit"
	"solana-pool-sentinel/internal/telemetry"

	"github.com/eapache/go-resiliency/breaker"
	"github.com/sirupsen/logrus"
)

// Sender is the delivery transport. *TelegramClient satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendPhoto(ctx context.Context, chatID, photoURL string) error
}

// Notifier runs the delivery state machine for each alert and keeps an
// in-memory record of abandoned jobs for observability.
type Notifier struct {
	sender       Sender
	chatID       string
	limiter      *ratelimit.Limiter
	brk          *breaker.Breaker
	maxAttempts  int
	retryBackoff time.Duration
	sendPhoto    bool
	logger       *logrus.Logger
	collector    *telemetry.Collector

	mu        sync.Mutex
	abandoned []*models.NotificationJob
}

// Config holds configuration for the notifier.
type Config struct {
	Sender           Sender
	ChatID           string
	Limiter          *ratelimit.Limiter
	MaxAttempts      int
	RetryBackoff     time.Duration
	SendHeaderPhoto  bool
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Logger           *logrus.Logger
	Collector        *telemetry.Collector
}

// New creates a notifier.
func New(cfg Config) *Notifier {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.BreakerThreshold < 1 {
		cfg.BreakerThreshold = 10
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	return &Notifier{
		sender:       cfg.Sender,
		chatID:       cfg.ChatID,
		limiter:      cfg.Limiter,
		brk:          breaker.New(cfg.BreakerThreshold, 1, cfg.BreakerCooldown),
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		sendPhoto:    cfg.SendHeaderPhoto,
		logger:       cfg.Logger,
		collector:    cfg.Collector,
	}
}

// Alert formats and delivers one notification. The returned job is in
// a terminal state: Sent, or Abandoned together with an error.
func (n *Notifier) Alert(ctx context.Context, event models.PoolCreationEvent, report *models.RiskReport) (*models.NotificationJob, error) {
	now := time.Now().UTC()
	job := &models.NotificationJob{
		Signature: event.Signature,
		Mint:      report.Mint.String(),
		Payload:   FormatAlert(event, report),
		ChatID:    n.chatID,
		State:     models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if n.sendPhoto {
		// Best effort; the text alert is the deliverable.
		if err := n.deliverPhoto(ctx, report.Mint); err != nil {
			n.logger.WithError(err).Debug("header photo delivery failed")
		}
	}

	err := n.deliver(ctx, job)
	return job, err
}

// deliver walks the job through pending -> sent / retrying / abandoned.
func (n *Notifier) deliver(ctx context.Context, job *models.NotificationJob) error {
	var lastErr error

	for job.Attempts < n.maxAttempts {
		if job.State == models.JobRetrying {
			select {
			case <-ctx.Done():
				n.abandon(job, ctx.Err())
				return ctx.Err()
			case <-time.After(n.retryBackoff):
			}
			job.State = models.JobPending
		}

		if n.limiter != nil {
			if err := n.limiter.Acquire(ctx, 1); err != nil {
				n.abandon(job, err)
				return err
			}
		}

		job.Attempts++
		job.UpdatedAt = time.Now().UTC()

		err := n.brk.Run(func() error {
			return n.sender.SendMessage(ctx, job.ChatID, job.Payload)
		})
		if err == nil {
			job.State = models.JobSent
			job.UpdatedAt = time.Now().UTC()
			if n.collector != nil {
				n.collector.NotificationSent()
			}
			n.logger.WithFields(logrus.Fields{
				"signature": job.Signature,
				"mint":      job.Mint,
				"attempts":  job.Attempts,
			}).Info("alert delivered")
			return nil
		}

		lastErr = err
		if n.collector != nil {
			n.collector.APIError()
		}

		if err != breaker.ErrBreakerOpen && !transientDelivery(err) {
			n.abandon(job, err)
			return fmt.Errorf("permanent delivery failure: %w", err)
		}

		job.State = models.JobRetrying
		n.logger.WithFields(logrus.Fields{
			"signature": job.Signature,
			"attempt":   job.Attempts,
			"error":     err,
		}).Warn("alert delivery failed, will retry")
	}

	n.abandon(job, lastErr)
	return fmt.Errorf("delivery abandoned after %d attempts: %w", job.Attempts, lastErr)
}

func (n *Notifier) abandon(job *models.NotificationJob, cause error) {
	job.State = models.JobAbandoned
	job.UpdatedAt = time.Now().UTC()

	n.mu.Lock()
	n.abandoned = append(n.abandoned, job)
	n.mu.Unlock()

	if n.collector != nil {
		n.collector.NotificationAbandoned()
	}
	n.logger.WithFields(logrus.Fields{
		"signature": job.Signature,
		"mint":      job.Mint,
		"attempts":  job.Attempts,
		"error":     cause,
	}).Error("alert abandoned")
}

// Abandoned returns a copy of the abandoned-job record.
func (n *Notifier) Abandoned() []*models.NotificationJob {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*models.NotificationJob, len(n.abandoned))
	copy(out, n.abandoned)
	return out
}

func (n *Notifier) deliverPhoto(ctx context.Context, mint models.MintAddress) error {
	if n.limiter != nil {
		if err := n.limiter.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	return n.sender.SendPhoto(ctx, n.chatID, headerPhotoURL(mint))
}

// AnnounceStartup tells the channel the watcher is live. Failure here
// is logged, not fatal: the channel may come up later.
func (n *Notifier) AnnounceStartup(ctx context.Context) {
	if n.limiter != nil {
		if err := n.limiter.Acquire(ctx, 1); err != nil {
			return
		}
	}
	msg := "🔔 *Pool Sentinel started* - monitoring Raydium liquidity pools..."
	if err := n.sender.SendMessage(ctx, n.chatID, msg); err != nil {
		n.logger.WithError(err).Warn("startup announcement failed")
	}
}
