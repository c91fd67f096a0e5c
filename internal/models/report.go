package models

// RiskLevel classifies a rug-check score for display and telemetry.
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskUnknown RiskLevel = "unknown"
)

// ClassifyScore maps a numeric rug-check score to a risk level.
// Thresholds follow the rugcheck scoring convention: higher is worse.
func ClassifyScore(score float64) RiskLevel {
	switch {
	case score > 75:
		return RiskHigh
	case score > 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskReport is the trustworthiness assessment for a mint. Scored is
// false when the analysis service could not be reached and the report
// is a placeholder; such reports still flow to notification.
type RiskReport struct {
	Mint            MintAddress `json:"mint"`
	Score           float64     `json:"score"`
	Level           RiskLevel   `json:"level"`
	Liquidity       float64     `json:"liquidity"`
	Creator         string      `json:"creator"`
	MintAuthority   string      `json:"mint_authority"`
	FreezeAuthority string      `json:"freeze_authority"`
	TopHolders      []float64   `json:"top_holders"`
	TopHoldersPct   float64     `json:"top_holders_pct"`
	Scored          bool        `json:"scored"`
}

// UnscoredReport is the fallback used when risk analysis permanently
// fails for a mint.
func UnscoredReport(mint MintAddress) *RiskReport {
	return &RiskReport{
		Mint:   mint,
		Level:  RiskUnknown,
		Scored: false,
	}
}
