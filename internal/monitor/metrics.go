package monitor

import (
	"github.com/rewired-gh/liqoracle/internal/models"
)

// AccelerationBaselineFloor is the previous speed (USD/sec) below which a
// ratio is not meaningful.
const AccelerationBaselineFloor = 500.0

// ComputeMetrics aggregates events over a window of windowSeconds.
//
// When no directional amount exists both LongBias and ShortBias are 0 rather
// than complementary. That asymmetry is kept as-is pending product
// clarification.
func ComputeMetrics(events []models.LiquidationEvent, windowSeconds float64) models.WindowMetrics {
	var total, longAmount, shortAmount float64
	tickerTotals := make(map[string]float64)

	for _, ev := range events {
		total += ev.Amount
		tickerTotals[ev.Ticker] += ev.Amount
		switch ev.Direction {
		case models.Long:
			longAmount += ev.Amount
		case models.Short:
			shortAmount += ev.Amount
		}
	}

	m := models.WindowMetrics{
		TotalAmount: total,
		TotalCount:  len(events),
		Dominance:   map[string]float64{},
	}
	if windowSeconds > 0 {
		m.SpeedUSDPerSec = total / windowSeconds
	}
	if m.TotalCount > 0 {
		m.AvgEventAmount = total / float64(m.TotalCount)
	}
	if total > 0 {
		for ticker, amount := range tickerTotals {
			m.Dominance[ticker] = amount / total
		}
	}
	if directional := longAmount + shortAmount; directional > 0 {
		m.LongBias = longAmount / directional
		m.ShortBias = 1 - m.LongBias
	}
	return m
}

// Accelerate returns the ratio of current to previous speed.
//
// When prev is at or below AccelerationBaselineFloor and there is current
// activity, saturation is returned instead. That value is a display cap,
// not a measured acceleration. With no activity at all the ratio is 1.
func Accelerate(current, prev, saturation float64) float64 {
	if prev > AccelerationBaselineFloor {
		return current / prev
	}
	if current > 0 {
		return saturation
	}
	return 1.0
}
