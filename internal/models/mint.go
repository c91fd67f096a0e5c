package models

import (
	"errors"
	"fmt"

	"solana-pool-sentinel/internal/constants"

	"github.com/mr-tron/base58"
)

// WSOLMint is wrapped SOL; pools always contain it, so it is never the
// token being launched.
var WSOLMint = constants.WSOLMint.String()

var (
	ErrInvalidMint = errors.New("invalid mint address")
	ErrWSOLMint    = errors.New("mint is wrapped SOL")
)

// MintAddress is a validated SPL token mint. Only ParseMint produces
// non-empty values.
type MintAddress string

func (m MintAddress) String() string { return string(m) }

// ParseMint validates a candidate mint address: it must decode as
// base58 to exactly 32 bytes and must not be wrapped SOL.
func ParseMint(s string) (MintAddress, error) {
	if s == "" {
		return "", ErrInvalidMint
	}
	if s == WSOLMint {
		return "", ErrWSOLMint
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("%w: decoded to %d bytes", ErrInvalidMint, len(raw))
	}
	return MintAddress(s), nil
}
