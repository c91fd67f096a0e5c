package notify

import (
	"fmt"
	"strings"

	"solana-pool-sentinel/internal/constants"
	"solana-pool-sentinel/internal/models"
)

func riskLabel(level models.RiskLevel) string {
	switch level {
	case models.RiskHigh:
		return "🚨 HIGH RISK"
	case models.RiskMedium:
		return "⚠️ MEDIUM RISK"
	case models.RiskLow:
		return "✅ LOW RISK"
	default:
		return "❓ UNKNOWN RISK"
	}
}

// FormatAlert renders the Telegram alert body for a pool detection.
func FormatAlert(event models.PoolCreationEvent, report *models.RiskReport) string {
	var b strings.Builder

	b.WriteString("📊 *New Pool Detected*\n\n")
	fmt.Fprintf(&b, "• *Token Mint:* `%s`\n", report.Mint)
	fmt.Fprintf(&b, "• *Signature:* `%s`\n", event.Signature)

	if report.Scored {
		fmt.Fprintf(&b, "• *Risk Score:* %.0f (%s)\n", report.Score, riskLabel(report.Level))
		fmt.Fprintf(&b, "• *Liquidity:* %.2f\n", report.Liquidity)
		fmt.Fprintf(&b, "• *Creator:* `%s`\n", report.Creator)
		fmt.Fprintf(&b, "• *Mint Authority:* `%s`\n", orNone(report.MintAuthority))
		fmt.Fprintf(&b, "• *Freeze Authority:* `%s`\n\n", orNone(report.FreezeAuthority))
	} else {
		fmt.Fprintf(&b, "• *Risk Score:* unavailable (%s)\n", riskLabel(report.Level))
		b.WriteString("• _Risk analysis could not be completed for this token._\n\n")
	}

	fmt.Fprintf(&b, "• *Explore:*  [DexScreener](%s%s)  | [Solscan](%s%s)\n\n",
		constants.DexScreenerTokenURL, report.Mint, constants.SolscanTokenURL, report.Mint)

	if len(report.TopHolders) > 0 {
		b.WriteString("*Top Holders (% Supply):*\n")
		for _, pct := range report.TopHolders {
			fmt.Fprintf(&b, "`%.2f%%`\n", pct)
		}
		fmt.Fprintf(&b, "\n*Total Top 10:* `%.2f%%`\n\n", report.TopHoldersPct)
	}

	b.WriteString("⚠️ _This is not financial advice. Always DYOR before investing._")
	return b.String()
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// headerPhotoURL is the DexScreener token banner used for the optional
// photo message.
func headerPhotoURL(mint models.MintAddress) string {
	return fmt.Sprintf("%s%s/header.png", constants.DexScreenerHeaderURL, mint)
}
