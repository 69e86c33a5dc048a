package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"morpho-rate-alerts/internal/fetcher"
)

var hundred = decimal.NewFromInt(100)

// RenderMessage builds the human readable alert text for a crossing in direction.
func RenderMessage(direction Direction, rule Rule, snap fetcher.MarketSnapshot, now time.Time) string {
	builder := strings.Builder{}
	if direction == DirectionAbove {
		builder.WriteString(fmt.Sprintf("🚨 Borrow APY crossed above %s%%\n", Percent(rule.Threshold)))
	} else {
		builder.WriteString(fmt.Sprintf("✅ Borrow APY fell back below %s%%\n", Percent(rule.Threshold)))
	}
	builder.WriteString(fmt.Sprintf("Market: %s\n", rule.MarketKey))
	builder.WriteString(fmt.Sprintf("Chain: %d\n", rule.ChainID))
	builder.WriteString(fmt.Sprintf("Borrow: %s\n", assetLine(snap.Loan)))
	builder.WriteString(fmt.Sprintf("Collateral: %s\n", assetLine(snap.Collateral)))
	builder.WriteString(fmt.Sprintf("Current APY: %s%%\n", Percent(snap.BorrowAPY)))
	builder.WriteString(fmt.Sprintf("Threshold: %s%%\n", Percent(rule.Threshold)))
	builder.WriteString(fmt.Sprintf("Utilization: %s%%\n", Percent(snap.Utilization)))
	builder.WriteString(fmt.Sprintf("Checked at: %s UTC", now.UTC().Format(time.RFC3339)))
	return builder.String()
}

// Percent renders a fraction as a percentage with two decimals (0.07 -> "7.00").
func Percent(fraction decimal.Decimal) string {
	return fraction.Mul(hundred).StringFixed(2)
}

func assetLine(asset fetcher.Asset) string {
	symbol := asset.Symbol
	if symbol == "" {
		symbol = "-"
	}
	if addr := asset.DisplayAddress(); addr != "" {
		return fmt.Sprintf("%s (%s)", symbol, addr)
	}
	return symbol
}
