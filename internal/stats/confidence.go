// Package stats provides the confidence accounting used to gate every
// learned change before it can touch live trading.
package stats

import (
	"math"

	"github.com/yourusername/tradeguard/internal/models"
)

// Config defines the sample-size tiers, interval percentages and blend
// weights. These are configuration data, not code; tests exercise boundary
// values directly.
type Config struct {
	LowSampleFloor    int     `json:"low_sample_floor"`    // below this: Insufficient
	MediumSampleFloor int     `json:"medium_sample_floor"` // below this: Low
	HighSampleFloor   int     `json:"high_sample_floor"`   // below this: Medium
	LowPct            float64 `json:"low_pct"`
	MediumPct         float64 `json:"medium_pct"`
	HighPct           float64 `json:"high_pct"`
	BlendLowWeight    float64 `json:"blend_low_weight"`
	BlendMediumWeight float64 `json:"blend_medium_weight"`
	BlendHighWeight   float64 `json:"blend_high_weight"`
}

// DefaultConfig returns the standard tier table
func DefaultConfig() Config {
	return Config{
		LowSampleFloor:    10,
		MediumSampleFloor: 30,
		HighSampleFloor:   100,
		LowPct:            80,
		MediumPct:         90,
		HighPct:           95,
		BlendLowWeight:    0.3,
		BlendMediumWeight: 0.7,
		BlendHighWeight:   1.0,
	}
}

// Estimator computes confidence metrics from numeric samples. Pure
// computation, safe for concurrent use.
type Estimator struct {
	cfg Config
}

// NewEstimator creates an estimator with the given tier configuration
func NewEstimator(cfg Config) *Estimator {
	return &Estimator{cfg: cfg}
}

// Level maps a sample size to its confidence level
func (e *Estimator) Level(n int) models.ConfidenceLevel {
	switch {
	case n < e.cfg.LowSampleFloor:
		return models.ConfidenceInsufficient
	case n < e.cfg.MediumSampleFloor:
		return models.ConfidenceLow
	case n < e.cfg.HighSampleFloor:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceHigh
	}
}

// ConfidencePct returns the interval percentage reported at a level.
// Insufficient samples carry no meaningful interval and report 0.
func (e *Estimator) ConfidencePct(level models.ConfidenceLevel) float64 {
	switch level {
	case models.ConfidenceLow:
		return e.cfg.LowPct
	case models.ConfidenceMedium:
		return e.cfg.MediumPct
	case models.ConfidenceHigh:
		return e.cfg.HighPct
	default:
		return 0
	}
}

// Describe computes mean, sample standard deviation (n-1 denominator),
// standard error and a two-sided interval at the percentage implied by the
// sample's confidence level. Degenerate inputs (empty or single-observation
// samples, zero variance) are guarded before any division.
func (e *Estimator) Describe(sample []float64) models.ConfidenceMetrics {
	n := len(sample)
	m := models.ConfidenceMetrics{
		SampleSize: n,
		Level:      e.Level(n),
	}
	if n == 0 {
		return m
	}

	m.Mean = mean(sample)
	if n > 1 {
		m.StdDev = sampleStdDev(sample, m.Mean)
		m.StdError = m.StdDev / math.Sqrt(float64(n))
	}

	if m.Level == models.ConfidenceInsufficient {
		// No interval is meaningful below the low-sample floor; callers
		// must not act on it.
		m.IntervalLow = m.Mean
		m.IntervalHigh = m.Mean
		return m
	}

	m.ConfidencePct = e.ConfidencePct(m.Level)
	crit := criticalValue(m.ConfidencePct, n)
	half := crit * m.StdError
	m.IntervalLow = m.Mean - half
	m.IntervalHigh = m.Mean + half
	return m
}

// Blend combines a learned value with a prior, with weight proportional to
// confidence level: nothing is adopted at Insufficient, everything at High.
// Used when a caller wants graceful adoption rather than all-or-nothing.
func (e *Estimator) Blend(learned, prior float64, level models.ConfidenceLevel) float64 {
	var w float64
	switch level {
	case models.ConfidenceLow:
		w = e.cfg.BlendLowWeight
	case models.ConfidenceMedium:
		w = e.cfg.BlendMediumWeight
	case models.ConfidenceHigh:
		w = e.cfg.BlendHighWeight
	default:
		w = 0
	}
	return w*learned + (1-w)*prior
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}
