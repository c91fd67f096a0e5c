// Package dispatch is the concurrency core: it admits pool-creation
// events into a bounded queue, runs each through the
// enrich -> risk -> notify pipeline on a fixed worker pool, and
// isolates per-event failures.
//
// Backpressure policy: Submit blocks when the queue is full. A blocked
// submit stalls the websocket reader, which is visible in telemetry
// (queue depth) and preferable to silently dropping detections.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"solana-pool-sentinel/internal/cache"
	"solana-pool-sentinel/internal/constants"
	"solana-pool-sentinel/internal/enrich"
	"solana-pool-sentinel/internal/models"
	"solana-pool-sentinel/internal/telemetry"

	"github.com/sirupsen/logrus"
)

// MintResolver is the enrichment stage.
type MintResolver interface {
	ResolveMint(ctx context.Context, signature string) (models.MintAddress, error)
}

// RiskAnalyzer is the risk-analysis stage.
type RiskAnalyzer interface {
	Check(ctx context.Context, mint models.MintAddress) (*models.RiskReport, error)
}

// AlertSender is the notification stage.
type AlertSender interface {
	Alert(ctx context.Context, event models.PoolCreationEvent, report *models.RiskReport) (*models.NotificationJob, error)
}

// AlertRecorder keeps completed alerts for the dashboard. Optional.
type AlertRecorder interface {
	AddRecentAlert(ctx context.Context, entry *cache.AlertEntry) error
}

// AlertArchiver persists completed alerts. Optional.
type AlertArchiver interface {
	Archive(ctx context.Context, entry *cache.AlertEntry) error
}

// Dispatcher owns the queue and the worker pool.
type Dispatcher struct {
	queue    chan models.PoolCreationEvent
	workers  int
	dedup    *dedupRing
	enricher MintResolver
	analyzer RiskAnalyzer
	notifier AlertSender
	recorder AlertRecorder
	archiver AlertArchiver

	logger    *logrus.Logger
	collector *telemetry.Collector

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Config holds configuration for the dispatcher.
type Config struct {
	Workers       int
	QueueCapacity int
	Enricher      MintResolver
	Analyzer      RiskAnalyzer
	Notifier      AlertSender
	Recorder      AlertRecorder // optional
	Archiver      AlertArchiver // optional
	Logger        *logrus.Logger
	Collector     *telemetry.Collector
}

// New creates a dispatcher. Start must be called before Submit.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 1
	}
	return &Dispatcher{
		queue:     make(chan models.PoolCreationEvent, cfg.QueueCapacity),
		workers:   cfg.Workers,
		dedup:     newDedupRing(constants.DedupRingSize),
		enricher:  cfg.Enricher,
		analyzer:  cfg.Analyzer,
		notifier:  cfg.Notifier,
		recorder:  cfg.Recorder,
		archiver:  cfg.Archiver,
		logger:    cfg.Logger,
		collector: cfg.Collector,
	}
}

// Start launches the worker pool. Workers run until the queue is
// closed by Stop; ctx aborts their in-flight external calls.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for event := range d.queue {
				d.updateQueueDepth()
				d.process(ctx, event)
			}
		}()
	}
}

// Submit admits an event, or blocks until a queue slot frees up.
// Duplicate signatures are discarded here, before they occupy a slot.
func (d *Dispatcher) Submit(ctx context.Context, event models.PoolCreationEvent) error {
	if !d.dedup.Remember(event.Signature) {
		if d.collector != nil {
			d.collector.DuplicateDropped()
		}
		d.logger.WithField("signature", event.Signature).Debug("duplicate event discarded")
		return nil
	}

	select {
	case d.queue <- event:
		d.updateQueueDepth()
		return nil
	case <-ctx.Done():
		// No pipeline ever ran; a redelivery must not be swallowed.
		d.dedup.Forget(event.Signature)
		return ctx.Err()
	}
}

// Stop closes the queue; workers drain what was admitted and exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.queue) })
}

// Wait blocks until all workers exit or the timeout elapses. Reports
// whether the drain completed in time.
func (d *Dispatcher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// process runs one event through the pipeline stages in order.
func (d *Dispatcher) process(ctx context.Context, event models.PoolCreationEvent) {
	if d.collector != nil {
		d.collector.PipelineStarted()
	}
	start := time.Now()

	log := d.logger.WithFields(logrus.Fields{
		"signature": event.Signature,
		"slot":      event.Slot,
	})

	mint, err := d.enricher.ResolveMint(ctx, event.Signature)
	if err != nil {
		switch {
		case errors.Is(err, enrich.ErrNoMint):
			log.WithError(err).Warn("no mint in pool transaction, event dropped")
		case errors.Is(err, context.Canceled):
			log.Debug("pipeline aborted by shutdown")
		default:
			log.WithError(err).Error("enrichment failed")
		}
		if d.collector != nil {
			d.collector.PipelineAborted()
		}
		return
	}

	report, err := d.analyzer.Check(ctx, mint)
	if err != nil {
		// Only context errors escape the analyzer; everything else
		// degrades to an unscored report inside it.
		log.WithError(err).Error("risk analysis aborted")
		if d.collector != nil {
			d.collector.PipelineAborted()
		}
		return
	}

	job, err := d.notifier.Alert(ctx, event, report)
	if err != nil {
		log.WithError(err).Error("notification failed")
	}

	d.record(ctx, event, report, job)

	if d.collector != nil {
		d.collector.PipelineDone(time.Since(start))
	}
	log.WithFields(logrus.Fields{
		"mint":    mint,
		"level":   report.Level,
		"elapsed": time.Since(start),
	}).Info("pipeline completed")
}

// record fans the completed alert out to the recent-alerts view and
// the archive. Both are best effort.
func (d *Dispatcher) record(ctx context.Context, event models.PoolCreationEvent, report *models.RiskReport, job *models.NotificationJob) {
	if d.recorder == nil && d.archiver == nil {
		return
	}

	entry := &cache.AlertEntry{
		Signature: event.Signature,
		Mint:      report.Mint.String(),
		Score:     report.Score,
		Level:     report.Level,
		SentAt:    time.Now().UTC(),
	}
	if job != nil {
		entry.State = job.State
	}

	if d.recorder != nil {
		if err := d.recorder.AddRecentAlert(ctx, entry); err != nil {
			d.logger.WithError(err).Warn("failed to record recent alert")
		}
	}
	if d.archiver != nil {
		if err := d.archiver.Archive(ctx, entry); err != nil {
			d.logger.WithError(err).Warn("failed to archive alert")
		}
	}
}

func (d *Dispatcher) updateQueueDepth() {
	if d.collector != nil {
		d.collector.SetQueueDepth(len(d.queue))
	}
}
