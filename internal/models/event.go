// ============================================================================
// models/event.go
// ============================================================================
package models

import "time"

// PoolCreationEvent is a single pool-initialization detection from the
// event stream. Immutable once produced.
type PoolCreationEvent struct {
	Signature  string    `json:"signature"`
	Slot       uint64    `json:"slot"`
	DetectedAt time.Time `json:"detected_at"`
}

// TransactionDetail is the parsed transaction behind a pool-creation
// event. It only lives long enough for mint extraction.
type TransactionDetail struct {
	Signature     string
	AccountKeys   []string
	TokenBalances []TokenBalanceEntry
}

// TokenBalanceEntry is one post-transaction token balance.
type TokenBalanceEntry struct {
	Mint         string
	Owner        string
	AccountIndex int
}
