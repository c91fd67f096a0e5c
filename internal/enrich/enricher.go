// Package enrich resolves a pool-creation signature to the mint
// address of the newly pooled token.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-pool-sentinel/internal/models"
	"solana-pool-sentinel/internal/rpc"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotIndexed means the node has not indexed the transaction yet.
	// Retried with short backoff, bounded attempts.
	ErrNotIndexed = errors.New("transaction not yet indexed")

	// ErrNoMint means the transaction carries no recognizable
	// mint-creation pattern. Permanent; the event is dropped.
	ErrNoMint = errors.New("no token mint found in transaction")
)

// TransactionFetcher is the slice of the RPC client the enricher uses.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, signature string) (*rpc.TransactionResponse, error)
}

// Enricher turns signatures into validated mint addresses.
type Enricher struct {
	client      TransactionFetcher
	maxAttempts int
	retryDelay  time.Duration
	logger      *logrus.Logger
}

// Config holds configuration for the enricher.
type Config struct {
	Client      TransactionFetcher
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *logrus.Logger
}

// New creates an enricher.
func New(cfg Config) *Enricher {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Enricher{
		client:      cfg.Client,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      cfg.Logger,
	}
}

// ResolveMint fetches the transaction behind signature and extracts
// the new token's mint. Indexing lag is retried up to MaxAttempts;
// ErrNoMint is permanent.
func (e *Enricher) ResolveMint(ctx context.Context, signature string) (models.MintAddress, error) {
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.retryDelay):
			}
			e.logger.WithFields(logrus.Fields{
				"signature": signature,
				"attempt":   attempt,
			}).Debug("retrying transaction lookup")
		}

		resp, err := e.client.GetTransaction(ctx, signature)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Result == nil {
			lastErr = ErrNotIndexed
			continue
		}

		detail := toDetail(signature, resp.Result)
		return ExtractMint(detail)
	}

	return "", fmt.Errorf("resolve mint for %s: %w", signature, lastErr)
}

// toDetail flattens the RPC response into the shape mint extraction
// works on. The detail is discarded right after.
func toDetail(signature string, result *rpc.TransactionResult) *models.TransactionDetail {
	detail := &models.TransactionDetail{Signature: signature}

	if result.Transaction != nil {
		for _, key := range result.Transaction.Message.AccountKeys {
			detail.AccountKeys = append(detail.AccountKeys, key.Pubkey)
		}
	}
	if result.Meta != nil {
		for _, tb := range result.Meta.PostTokenBalances {
			detail.TokenBalances = append(detail.TokenBalances, models.TokenBalanceEntry{
				Mint:         tb.Mint,
				Owner:        tb.Owner,
				AccountIndex: tb.AccountIndex,
			})
		}
	}
	return detail
}

// ExtractMint picks the first valid non-WSOL mint from the
// transaction's token balances. Pool initialization always references
// wrapped SOL plus the launched token, so skipping WSOL leaves the
// token being launched.
func ExtractMint(detail *models.TransactionDetail) (models.MintAddress, error) {
	for _, tb := range detail.TokenBalances {
		mint, err := models.ParseMint(tb.Mint)
		if err != nil {
			continue
		}
		return mint, nil
	}
	return "", fmt.Errorf("%w: signature %s", ErrNoMint, detail.Signature)
}
