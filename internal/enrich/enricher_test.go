package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-pool-sentinel/internal/models"
	"solana-pool-sentinel/internal/rpc"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

type fakeFetcher struct {
	responses []*rpc.TransactionResponse
	errs      []error
	calls     int
}

func (f *fakeFetcher) GetTransaction(ctx context.Context, signature string) (*rpc.TransactionResponse, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], f.errs[i]
}

func respWithMints(mints ...string) *rpc.TransactionResponse {
	meta := &rpc.TransactionMeta{}
	for _, m := range mints {
		meta.PostTokenBalances = append(meta.PostTokenBalances, rpc.TokenBalance{Mint: m})
	}
	return &rpc.TransactionResponse{Result: &rpc.TransactionResult{Meta: meta}}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestEnricher(f *fakeFetcher, attempts int) *Enricher {
	return New(Config{
		Client:      f,
		MaxAttempts: attempts,
		RetryDelay:  time.Millisecond,
		Logger:      quietLogger(),
	})
}

func TestResolveMint_SkipsWSOL(t *testing.T) {
	f := &fakeFetcher{
		responses: []*rpc.TransactionResponse{respWithMints(models.WSOLMint, testMint)},
		errs:      []error{nil},
	}
	e := newTestEnricher(f, 3)

	mint, err := e.ResolveMint(context.Background(), "SIG1")
	require.NoError(t, err)
	assert.Equal(t, testMint, mint.String())
	assert.Equal(t, 1, f.calls)
}

func TestResolveMint_RetriesUntilIndexed(t *testing.T) {
	f := &fakeFetcher{
		responses: []*rpc.TransactionResponse{
			{Result: nil},
			{Result: nil},
			respWithMints(testMint),
		},
		errs: []error{nil, nil, nil},
	}
	e := newTestEnricher(f, 5)

	mint, err := e.ResolveMint(context.Background(), "SIG1")
	require.NoError(t, err)
	assert.Equal(t, testMint, mint.String())
	assert.Equal(t, 3, f.calls)
}

func TestResolveMint_BoundedAttempts(t *testing.T) {
	f := &fakeFetcher{
		responses: []*rpc.TransactionResponse{{Result: nil}},
		errs:      []error{nil},
	}
	e := newTestEnricher(f, 4)

	_, err := e.ResolveMint(context.Background(), "SIG1")
	assert.ErrorIs(t, err, ErrNotIndexed)
	assert.Equal(t, 4, f.calls)
}

func TestResolveMint_NoMintIsPermanent(t *testing.T) {
	f := &fakeFetcher{
		responses: []*rpc.TransactionResponse{respWithMints(models.WSOLMint)},
		errs:      []error{nil},
	}
	e := newTestEnricher(f, 5)

	_, err := e.ResolveMint(context.Background(), "SIG1")
	assert.ErrorIs(t, err, ErrNoMint)
	// Parse failure is permanent: no further attempts spent on it.
	assert.Equal(t, 1, f.calls)
}

func TestResolveMint_TransportErrorsCountAgainstAttempts(t *testing.T) {
	netErr := errors.New("connection refused")
	f := &fakeFetcher{
		responses: []*rpc.TransactionResponse{nil, respWithMints(testMint)},
		errs:      []error{netErr, nil},
	}
	e := newTestEnricher(f, 3)

	mint, err := e.ResolveMint(context.Background(), "SIG1")
	require.NoError(t, err)
	assert.Equal(t, testMint, mint.String())
	assert.Equal(t, 2, f.calls)
}

func TestExtractMint_InvalidAddressesSkipped(t *testing.T) {
	detail := &models.TransactionDetail{
		Signature: "SIG1",
		TokenBalances: []models.TokenBalanceEntry{
			{Mint: "garbage"},
			{Mint: testMint},
		},
	}
	mint, err := ExtractMint(detail)
	require.NoError(t, err)
	assert.Equal(t, testMint, mint.String())
}
