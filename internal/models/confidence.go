package models

import "fmt"

// ConfidenceLevel classifies how strongly a statistic may be trusted,
// derived from sample size alone.
type ConfidenceLevel int

const (
	// ConfidenceInsufficient means the sample is too small to act on (< 10)
	ConfidenceInsufficient ConfidenceLevel = iota
	// ConfidenceLow covers samples of 10 to 29, reported at 80%
	ConfidenceLow
	// ConfidenceMedium covers samples of 30 to 99, reported at 90%
	ConfidenceMedium
	// ConfidenceHigh covers samples of 100 or more, reported at 95%
	ConfidenceHigh
)

// String returns string representation of the confidence level
func (l ConfidenceLevel) String() string {
	switch l {
	case ConfidenceInsufficient:
		return "INSUFFICIENT"
	case ConfidenceLow:
		return "LOW"
	case ConfidenceMedium:
		return "MEDIUM"
	case ConfidenceHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// ConfidenceMetrics describes a sample and the interval around its mean.
// Computed on demand from a cohort slice of the ledger; never persisted
// independently of the sample it describes.
type ConfidenceMetrics struct {
	Mean          float64         `json:"mean"`
	StdDev        float64         `json:"std_dev"`
	StdError      float64         `json:"std_error"`
	IntervalLow   float64         `json:"interval_low"`
	IntervalHigh  float64         `json:"interval_high"`
	SampleSize    int             `json:"sample_size"`
	Level         ConfidenceLevel `json:"level"`
	ConfidencePct float64         `json:"confidence_pct"`
}

// Actionable reports whether callers may act on this sample at all
func (m ConfidenceMetrics) Actionable() bool {
	return m.Level > ConfidenceInsufficient
}

// IntervalString renders the interval for justification strings and audit logs
func (m ConfidenceMetrics) IntervalString() string {
	return fmt.Sprintf("%.0f%% CI [%.4f, %.4f] (n=%d, %s)",
		m.ConfidencePct, m.IntervalLow, m.IntervalHigh, m.SampleSize, m.Level)
}
