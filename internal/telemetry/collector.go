// Package telemetry holds the process-wide counters and gauges mutated
// by every pipeline stage. Updates are lock-free; Snapshot assembles a
// point-in-time view for the dashboard API.
package telemetry

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// StreamState mirrors the event stream client's connectivity.
type StreamState int32

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
)

func (s StreamState) String() string {
	switch s {
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Collector accumulates counters across all components.
type Collector struct {
	startedAt time.Time

	eventsReceived         atomic.Int64
	duplicatesDropped      atomic.Int64
	poolsProcessed         atomic.Int64
	pipelineFailures       atomic.Int64
	apiErrors              atomic.Int64
	reconnects             atomic.Int64
	notificationsSent      atomic.Int64
	notificationsAbandoned atomic.Int64
	activePipelines        atomic.Int64
	queueDepth             atomic.Int64

	// Latency as sum+count so the average survives concurrent writers.
	pipelineNanosTotal atomic.Int64
	pipelineCount      atomic.Int64

	streamState atomic.Int32
}

// NewCollector starts the uptime clock.
func NewCollector() *Collector {
	return &Collector{startedAt: time.Now()}
}

func (c *Collector) EventReceived() { c.eventsReceived.Add(1) }
func (c *Collector) DuplicateDropped() { c.duplicatesDropped.Add(1) }
func (c *Collector) PipelineFailed() { c.pipelineFailures.Add(1) }
func (c *Collector) APIError() { c.apiErrors.Add(1) }
func (c *Collector) Reconnect() { c.reconnects.Add(1) }
func (c *Collector) NotificationSent() { c.notificationsSent.Add(1) }
func (c *Collector) NotificationAbandoned() { c.notificationsAbandoned.Add(1) }

// PipelineStarted and PipelineDone bracket one event's processing.
func (c *Collector) PipelineStarted() { c.activePipelines.Add(1) }

func (c *Collector) PipelineDone(elapsed time.Duration) {
	c.activePipelines.Add(-1)
	c.poolsProcessed.Add(1)
	c.pipelineNanosTotal.Add(int64(elapsed))
	c.pipelineCount.Add(1)
}

// PipelineAborted releases the slot without counting a completion.
func (c *Collector) PipelineAborted() {
	c.activePipelines.Add(-1)
	c.pipelineFailures.Add(1)
}

func (c *Collector) SetQueueDepth(n int) { c.queueDepth.Store(int64(n)) }
func (c *Collector) SetStreamState(s StreamState) { c.streamState.Store(int32(s)) }

// Snapshot is the dashboard data contract: plain values, no locks held
// by the reader.
type Snapshot struct {
	UptimeSeconds          float64 `json:"uptime_seconds"`
	EventsReceived         int64   `json:"events_received"`
	DuplicatesDropped      int64   `json:"duplicates_dropped"`
	PoolsProcessed         int64   `json:"pools_processed"`
	PipelineFailures       int64   `json:"pipeline_failures"`
	AvgPipelineMillis      float64 `json:"avg_pipeline_ms"`
	APIErrors              int64   `json:"api_errors"`
	Reconnects             int64   `json:"reconnects"`
	NotificationsSent      int64   `json:"notifications_sent"`
	NotificationsAbandoned int64   `json:"notifications_abandoned"`
	ActivePipelines        int64   `json:"active_pipelines"`
	QueueDepth             int64   `json:"queue_depth"`
	StreamState            string  `json:"stream_state"`
	HeapMB                 float64 `json:"heap_mb"`
}

// Snapshot returns the current cumulative view.
func (c *Collector) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var avgMs float64
	if n := c.pipelineCount.Load(); n > 0 {
		avgMs = float64(c.pipelineNanosTotal.Load()) / float64(n) / float64(time.Millisecond)
	}

	return Snapshot{
		UptimeSeconds:          time.Since(c.startedAt).Seconds(),
		EventsReceived:         c.eventsReceived.Load(),
		DuplicatesDropped:      c.duplicatesDropped.Load(),
		PoolsProcessed:         c.poolsProcessed.Load(),
		PipelineFailures:       c.pipelineFailures.Load(),
		AvgPipelineMillis:      avgMs,
		APIErrors:              c.apiErrors.Load(),
		Reconnects:             c.reconnects.Load(),
		NotificationsSent:      c.notificationsSent.Load(),
		NotificationsAbandoned: c.notificationsAbandoned.Load(),
		ActivePipelines:        c.activePipelines.Load(),
		QueueDepth:             c.queueDepth.Load(),
		StreamState:            StreamState(c.streamState.Load()).String(),
		HeapMB:                 float64(mem.HeapAlloc) / 1024 / 1024,
	}
}

// Flush logs the final snapshot. Called once at shutdown.
func (c *Collector) Flush(logger *logrus.Logger) {
	s := c.Snapshot()
	logger.WithFields(logrus.Fields{
		"uptime_s":   s.UptimeSeconds,
		"pools":      s.PoolsProcessed,
		"events":     s.EventsReceived,
		"duplicates": s.DuplicatesDropped,
		"failures":   s.PipelineFailures,
		"avg_ms":     s.AvgPipelineMillis,
		"api_errors": s.APIErrors,
		"reconnects": s.Reconnects,
		"sent":       s.NotificationsSent,
		"abandoned":  s.NotificationsAbandoned,
	}).Info("final telemetry")
}

// LogPeriodically emits a stats line every interval until ctx is done.
func (c *Collector) LogPeriodically(logger *logrus.Logger, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s := c.Snapshot()
			logger.WithFields(logrus.Fields{
				"pools":      s.PoolsProcessed,
				"avg_ms":     s.AvgPipelineMillis,
				"heap_mb":    s.HeapMB,
				"reconnects": s.Reconnects,
				"api_errors": s.APIErrors,
				"queue":      s.QueueDepth,
				"active":     s.ActivePipelines,
			}).Info("telemetry")
		}
	}
}
