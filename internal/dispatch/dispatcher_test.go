package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"solana-pool-sentinel/internal/cache"
	"solana-pool-sentinel/internal/enrich"
	"solana-pool-sentinel/internal/models"
	"solana-pool-sentinel/internal/telemetry"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMint = models.MintAddress("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

type fakeEnricher struct {
	mints map[string]models.MintAddress
	errs  map[string]error
	delay time.Duration
}

func (f *fakeEnricher) ResolveMint(ctx context.Context, signature string) (models.MintAddress, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if err, ok := f.errs[signature]; ok {
		return "", err
	}
	if mint, ok := f.mints[signature]; ok {
		return mint, nil
	}
	return testMint, nil
}

type fakeAnalyzer struct {
	level   models.RiskLevel
	active  atomic.Int64
	maxSeen atomic.Int64
}

func (f *fakeAnalyzer) Check(ctx context.Context, mint models.MintAddress) (*models.RiskReport, error) {
	cur := f.active.Add(1)
	for {
		seen := f.maxSeen.Load()
		if cur <= seen || f.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	f.active.Add(-1)

	level := f.level
	if level == "" {
		level = models.RiskLow
	}
	return &models.RiskReport{Mint: mint, Level: level, Score: 10, Scored: true}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*models.NotificationJob
}

func (f *fakeNotifier) Alert(ctx context.Context, event models.PoolCreationEvent, report *models.RiskReport) (*models.NotificationJob, error) {
	job := &models.NotificationJob{
		Signature: event.Signature,
		Mint:      report.Mint.String(),
		Payload:   fmt.Sprintf("%s %s", report.Mint, report.Level),
		State:     models.JobSent,
		Attempts:  1,
	}
	f.mu.Lock()
	f.sent = append(f.sent, job)
	f.mu.Unlock()
	return job, nil
}

func (f *fakeNotifier) jobs() []*models.NotificationJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.NotificationJob, len(f.sent))
	copy(out, f.sent)
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func event(sig string) models.PoolCreationEvent {
	return models.PoolCreationEvent{Signature: sig, Slot: 1, DetectedAt: time.Now()}
}

func TestDispatcher_EndToEndScenario(t *testing.T) {
	// SIG1 -> MINT1 -> low risk -> exactly one notification with both.
	enricher := &fakeEnricher{mints: map[string]models.MintAddress{"SIG1": testMint}}
	analyzer := &fakeAnalyzer{level: models.RiskLow}
	notifier := &fakeNotifier{}
	recorder := cache.NewMemoryCache(time.Minute)

	d := New(Config{
		Workers:       2,
		QueueCapacity: 8,
		Enricher:      enricher,
		Analyzer:      analyzer,
		Notifier:      notifier,
		Recorder:      recorder,
		Logger:        quietLogger(),
		Collector:     telemetry.NewCollector(),
	})

	ctx := context.Background()
	d.Start(ctx)
	require.NoError(t, d.Submit(ctx, event("SIG1")))
	d.Stop()
	require.True(t, d.Wait(5*time.Second))

	jobs := notifier.jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "SIG1", jobs[0].Signature)
	assert.Contains(t, jobs[0].Payload, testMint.String())
	assert.Contains(t, jobs[0].Payload, "low")

	alerts, err := recorder.GetRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.JobSent, alerts[0].State)
}

func TestDispatcher_DuplicateSignatureDiscarded(t *testing.T) {
	notifier := &fakeNotifier{}
	collector := telemetry.NewCollector()

	d := New(Config{
		Workers:       2,
		QueueCapacity: 8,
		Enricher:      &fakeEnricher{},
		Analyzer:      &fakeAnalyzer{},
		Notifier:      notifier,
		Logger:        quietLogger(),
		Collector:     collector,
	})

	ctx := context.Background()
	d.Start(ctx)
	require.NoError(t, d.Submit(ctx, event("SIG2")))
	require.NoError(t, d.Submit(ctx, event("SIG2")))
	d.Stop()
	require.True(t, d.Wait(5*time.Second))

	assert.Len(t, notifier.jobs(), 1, "duplicate must not produce a second pipeline")
	s := collector.Snapshot()
	assert.Equal(t, int64(1), s.DuplicatesDropped)
	assert.Equal(t, int64(1), s.PoolsProcessed)
}

func TestDispatcher_ConcurrencyBoundHolds(t *testing.T) {
	const bound = 3
	analyzer := &fakeAnalyzer{}

	d := New(Config{
		Workers:       bound,
		QueueCapacity: 64,
		Enricher:      &fakeEnricher{},
		Analyzer:      analyzer,
		Notifier:      &fakeNotifier{},
		Logger:        quietLogger(),
	})

	ctx := context.Background()
	d.Start(ctx)
	for i := 0; i < 40; i++ {
		require.NoError(t, d.Submit(ctx, event(fmt.Sprintf("SIG-%d", i))))
	}
	d.Stop()
	require.True(t, d.Wait(10*time.Second))

	assert.LessOrEqual(t, analyzer.maxSeen.Load(), int64(bound),
		"active pipelines must never exceed the worker bound")
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	enricher := &fakeEnricher{
		errs: map[string]error{"BAD": fmt.Errorf("%w: signature BAD", enrich.ErrNoMint)},
	}
	notifier := &fakeNotifier{}
	collector := telemetry.NewCollector()

	d := New(Config{
		Workers:       2,
		QueueCapacity: 8,
		Enricher:      enricher,
		Analyzer:      &fakeAnalyzer{},
		Notifier:      notifier,
		Logger:        quietLogger(),
		Collector:     collector,
	})

	ctx := context.Background()
	d.Start(ctx)
	require.NoError(t, d.Submit(ctx, event("GOOD-1")))
	require.NoError(t, d.Submit(ctx, event("BAD")))
	require.NoError(t, d.Submit(ctx, event("GOOD-2")))
	d.Stop()
	require.True(t, d.Wait(5*time.Second))

	assert.Len(t, notifier.jobs(), 2, "failing event must not affect the others")
	s := collector.Snapshot()
	assert.Equal(t, int64(2), s.PoolsProcessed)
	assert.Equal(t, int64(1), s.PipelineFailures)
	assert.Equal(t, int64(0), s.ActivePipelines)
}

func TestDispatcher_SubmitBlocksUntilSlotFrees(t *testing.T) {
	// One slow worker and a single-slot queue: a third submit must
	// block until capacity frees, then succeed.
	d := New(Config{
		Workers:       1,
		QueueCapacity: 1,
		Enricher:      &fakeEnricher{delay: 20 * time.Millisecond},
		Analyzer:      &fakeAnalyzer{},
		Notifier:      &fakeNotifier{},
		Logger:        quietLogger(),
	})

	ctx := context.Background()
	d.Start(ctx)

	start := time.Now()
	require.NoError(t, d.Submit(ctx, event("S1")))
	require.NoError(t, d.Submit(ctx, event("S2")))
	require.NoError(t, d.Submit(ctx, event("S3")))
	blockedFor := time.Since(start)

	d.Stop()
	require.True(t, d.Wait(5*time.Second))
	assert.Greater(t, blockedFor, 10*time.Millisecond, "third submit should have waited for a slot")
}

func TestDispatcher_SubmitRespectsContext(t *testing.T) {
	d := New(Config{
		Workers:       1,
		QueueCapacity: 1,
		Enricher:      &fakeEnricher{delay: time.Second},
		Analyzer:      &fakeAnalyzer{},
		Notifier:      &fakeNotifier{},
		Logger:        quietLogger(),
	})

	ctx := context.Background()
	d.Start(ctx)
	require.NoError(t, d.Submit(ctx, event("S1")))
	require.NoError(t, d.Submit(ctx, event("S2")))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := d.Submit(short, event("S3"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	d.Stop()
	d.Wait(5 * time.Second)
}

func TestDispatcher_CancelledSubmitAdmitsRedelivery(t *testing.T) {
	// A submit that times out while blocked on a full queue never ran a
	// pipeline, so the same signature redelivered after a reconnect
	// must be admitted, not treated as a duplicate.
	notifier := &fakeNotifier{}
	collector := telemetry.NewCollector()

	d := New(Config{
		Workers:       1,
		QueueCapacity: 1,
		Enricher:      &fakeEnricher{delay: 20 * time.Millisecond},
		Analyzer:      &fakeAnalyzer{},
		Notifier:      notifier,
		Logger:        quietLogger(),
		Collector:     collector,
	})

	ctx := context.Background()
	d.Start(ctx)
	require.NoError(t, d.Submit(ctx, event("S1")))
	require.NoError(t, d.Submit(ctx, event("S2")))

	short, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Submit(short, event("REPLAY")), context.DeadlineExceeded)

	// Redelivery of the never-queued signature goes through.
	require.NoError(t, d.Submit(ctx, event("REPLAY")))
	d.Stop()
	require.True(t, d.Wait(5*time.Second))

	sigs := make([]string, 0, 3)
	for _, job := range notifier.jobs() {
		sigs = append(sigs, job.Signature)
	}
	assert.Contains(t, sigs, "REPLAY")
	assert.Equal(t, int64(0), collector.Snapshot().DuplicatesDropped)
}

func TestDedupRing_EvictsOldest(t *testing.T) {
	r := newDedupRing(2)
	assert.True(t, r.Remember("A"))
	assert.True(t, r.Remember("B"))
	assert.False(t, r.Remember("A"))

	// C evicts A; A becomes rememberable again.
	assert.True(t, r.Remember("C"))
	assert.True(t, r.Remember("A"))
}

func TestDedupRing_ForgetReleasesSignature(t *testing.T) {
	r := newDedupRing(4)
	assert.True(t, r.Remember("A"))
	assert.False(t, r.Remember("A"))

	r.Forget("A")
	assert.True(t, r.Remember("A"))

	// Forgetting an unknown signature is a no-op.
	r.Forget("NEVER-SEEN")
	assert.False(t, r.Remember("A"))

	// The cleared slot must not evict the re-remembered entry when the
	// ring wraps past it.
	r.Forget("A")
	assert.True(t, r.Remember("B"))
	assert.True(t, r.Remember("C"))
	assert.True(t, r.Remember("D"))
	assert.True(t, r.Remember("E"))
	assert.False(t, r.Remember("B"))
}
