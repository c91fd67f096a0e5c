package rugcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"solana-pool-sentinel/internal/cache"
	"solana-pool-sentinel/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMint = models.MintAddress("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

const sampleReportJSON = `{
	"score": 12,
	"creator": "CreatorPubkey111",
	"totalMarketLiquidity": 54321.5,
	"mintAuthority": "",
	"freezeAuthority": "",
	"topHolders": [
		{"address": "h1", "amount": 600},
		{"address": "h2", "amount": 300},
		{"address": "h3", "amount": 100}
	]
}`

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestClient(url string, maxAttempts int, reportCache cache.ReportCache) *Client {
	return NewClient(Config{
		BaseURL:      url,
		Timeout:      2 * time.Second,
		Cache:        reportCache,
		MaxAttempts:  maxAttempts,
		RetryBackoff: time.Millisecond,
		// High enough that one pipeline's retry budget cannot trip it.
		BreakerThreshold: 100,
		BreakerCooldown:  time.Second,
		Logger:           quietLogger(),
	})
}

func TestCheck_ParsesReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/"+testMint.String()+"/report", r.URL.Path)
		_, _ = w.Write([]byte(sampleReportJSON))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1, nil)
	report, err := c.Check(context.Background(), testMint)
	require.NoError(t, err)

	assert.True(t, report.Scored)
	assert.Equal(t, models.RiskLow, report.Level)
	assert.Equal(t, 12.0, report.Score)
	assert.Equal(t, 54321.5, report.Liquidity)
	assert.Equal(t, "CreatorPubkey111", report.Creator)
	require.Len(t, report.TopHolders, 3)
	assert.InDelta(t, 60.0, report.TopHolders[0], 0.01)
	assert.InDelta(t, 100.0, report.TopHoldersPct, 0.01)
}

func TestCheck_RecoversAfterServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(sampleReportJSON))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5, nil)
	report, err := c.Check(context.Background(), testMint)
	require.NoError(t, err)

	// 3 failures then success on the 4th response, no abandonment.
	assert.Equal(t, int32(4), calls.Load())
	assert.True(t, report.Scored)
}

func TestCheck_ExhaustionYieldsUnscoredReport(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 4, nil)
	report, err := c.Check(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, int32(4), calls.Load(), "exactly max_attempts calls, no infinite retry")
	assert.False(t, report.Scored)
	assert.Equal(t, models.RiskUnknown, report.Level)
	assert.Equal(t, testMint, report.Mint)
}

func TestCheck_PermanentClientErrorSkipsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5, nil)
	report, err := c.Check(context.Background(), testMint)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, report.Scored)
}

func TestCheck_UsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(sampleReportJSON))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1, cache.NewMemoryCache(time.Minute))
	ctx := context.Background()

	first, err := c.Check(ctx, testMint)
	require.NoError(t, err)
	second, err := c.Check(ctx, testMint)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "second lookup served from cache")
	assert.Equal(t, first.Score, second.Score)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&HTTPError{StatusCode: 500}))
	assert.True(t, retryable(&HTTPError{StatusCode: 503}))
	assert.True(t, retryable(&HTTPError{StatusCode: 429}))
	assert.False(t, retryable(&HTTPError{StatusCode: 400}))
	assert.False(t, retryable(&HTTPError{StatusCode: 404}))
	assert.True(t, retryable(assert.AnError))
}
