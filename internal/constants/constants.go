package constants

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Program addresses watched for pool creation
var (
	// Raydium AMM v4; pool initialization transactions mention it
	RaydiumAMMProgram = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")

	// Wrapped SOL mint, present in every pool pair
	WSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

// PoolInitLogMarker is the log line Raydium emits when a new pool is
// initialized. Its presence in a logsNotification flags a detection.
const PoolInitLogMarker = "initialize2: InitializeInstruction2"

// Redis keys
const (
	RedisKeyRecentAlerts = "alerts:recent"
	RedisKeyReportPrefix = "rugcheck:report:"
)

// Limits
const (
	MaxRecentAlerts = 100
	DedupRingSize   = 4096
)

// Stream reconnect policy
const (
	ReconnectBaseDelay = 1 * time.Second
	ReconnectMaxDelay  = 60 * time.Second
	// A connection that survives this long resets the backoff schedule.
	StableConnWindow = 30 * time.Second
)

// External endpoints
const (
	DexScreenerTokenURL  = "https://dexscreener.com/solana/"
	DexScreenerHeaderURL = "https://dd.dexscreener.com/ds-data/tokens/solana/"
	SolscanTokenURL      = "https://solscan.io/token/"
)
