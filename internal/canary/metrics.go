package canary

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/tradeguard/internal/models"
)

// ComputeMetrics derives win rate, peak-to-trough drawdown and a
// Sharpe-like ratio (mean return over return standard deviation) from a
// set of trade outcomes. The canary monitor feeds it canary-tagged trades
// only; the controller uses it on recent history to capture a baseline.
func ComputeMetrics(outcomes []*models.TradeOutcome, capturedAt time.Time) models.BaselineMetrics {
	m := models.BaselineMetrics{
		SampleSize:  len(outcomes),
		MaxDrawdown: decimal.Zero,
		CapturedAt:  capturedAt,
	}
	if len(outcomes) == 0 {
		return m
	}

	wins := 0
	equity := decimal.Zero
	peak := decimal.Zero
	maxDD := decimal.Zero
	returns := make([]float64, 0, len(outcomes))

	for _, o := range outcomes {
		if o.IsWin() {
			wins++
		}
		returns = append(returns, o.RealizedPnL.InexactFloat64())

		equity = equity.Add(o.RealizedPnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		dd := peak.Sub(equity)
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}

	m.WinRate = float64(wins) / float64(len(outcomes))
	m.MaxDrawdown = maxDD
	m.SharpeRatio = sharpeLike(returns)
	return m
}

// sharpeLike is mean return divided by return standard deviation; zero
// when variance vanishes rather than propagating a division by zero.
func sharpeLike(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}

// relativeDrop measures how far observed has fallen below baseline,
// as a fraction of baseline. Non-positive baselines yield zero; a drop
// from nothing is not a drop.
func relativeDrop(baseline, observed float64) float64 {
	if baseline <= 0 {
		return 0
	}
	drop := (baseline - observed) / baseline
	if drop < 0 {
		return 0
	}
	return drop
}
