package monitor

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/rewired-gh/liqoracle/internal/models"
)

const (
	summaryTitle  = "⚠ High Liquidation Activity ⚠"
	criticalTitle = "🚨 CRITICAL LIQUIDATION SPIKE 🚨"
	topDominance  = 3
)

// FormatSummary renders the end-of-period alert.
func FormatSummary(metrics models.WindowMetrics, acceleration, prevSpeed float64, cfg Config) models.Alert {
	alert := models.Alert{Title: summaryTitle, Severity: models.SeverityWarning}
	if acceleration >= cfg.AccelerationThreshold && metrics.SpeedUSDPerSec >= cfg.BaseThreshold {
		alert.Title = criticalTitle
		alert.Severity = models.SeverityCritical
	}

	alert.Lines = []string{
		fmt.Sprintf("**Speed:** `%.2f USD/sec`", metrics.SpeedUSDPerSec),
		fmt.Sprintf("**Acceleration:** `x%.2f` (Prev Window: %.2f USD/sec)", acceleration, prevSpeed),
		fmt.Sprintf("**Count:** `%d events`", metrics.TotalCount),
		fmt.Sprintf("**Total Amount:** `$%s`", FormatUSD(metrics.TotalAmount)),
	}
	if metrics.TotalCount > 0 {
		alert.Lines = append(alert.Lines, fmt.Sprintf("**Avg per event:** `$%s`", FormatUSD(metrics.AvgEventAmount)))
	}
	if line := dominanceLine(metrics.Dominance); line != "" {
		alert.Lines = append(alert.Lines, line)
	}

	switch {
	case metrics.LongBias >= cfg.BiasThreshold:
		alert.Lines = append(alert.Lines, fmt.Sprintf("🔴 **Long Flush:** `%.1f%%` Longs", metrics.LongBias*100))
	case metrics.ShortBias >= cfg.BiasThreshold:
		alert.Lines = append(alert.Lines, fmt.Sprintf("🟢 **Short Squeeze:** `%.1f%%` Shorts", metrics.ShortBias*100))
	}
	return alert
}

type tickerShare struct {
	ticker string
	share  float64
}

func dominanceLine(dominance map[string]float64) string {
	shares := make([]tickerShare, 0, len(dominance))
	for ticker, share := range dominance {
		if share > 0 {
			shares = append(shares, tickerShare{ticker, share})
		}
	}
	if len(shares) == 0 {
		return ""
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].share != shares[j].share {
			return shares[i].share > shares[j].share
		}
		return shares[i].ticker < shares[j].ticker
	})
	if len(shares) > topDominance {
		shares = shares[:topDominance]
	}

	line := "**Dominance:** "
	for i, s := range shares {
		if i > 0 {
			line += ", "
		}
		line += fmt.Sprintf("%s: %.1f%%", s.ticker, s.share*100)
	}
	return line
}

// FormatUSD formats a dollar amount with thousands separators and two decimals.
func FormatUSD(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}
