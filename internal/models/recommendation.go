package models

import "time"

// ParameterRecommendation is the optimizer's verdict on a candidate parameter
// value for a cohort. Apply is false unless the candidate beats the current
// value by the configured margin at Medium confidence or better.
type ParameterRecommendation struct {
	Cohort              CohortKey         `json:"cohort"`
	CurrentValue        float64           `json:"current_value"`
	CandidateValue      float64           `json:"candidate_value"`
	CurrentMean         float64           `json:"current_mean"`
	CandidateMean       float64           `json:"candidate_mean"`
	CurrentConfidence   ConfidenceMetrics `json:"current_confidence"`
	CandidateConfidence ConfidenceMetrics `json:"candidate_confidence"`
	Apply               bool              `json:"apply"`
	Justification       string            `json:"justification"`
	GeneratedAt         time.Time         `json:"generated_at"`
}

// ExcursionThreshold is an early-exit threshold derived from historical
// adverse-excursion trajectories. Only materialized when both the stop-out
// probability floor and the sample-size floor are met.
type ExcursionThreshold struct {
	Cohort             CohortKey     `json:"cohort"`
	Checkpoint         time.Duration `json:"checkpoint"`
	Magnitude          float64       `json:"magnitude"` // bucket lower bound, price ticks
	StopOutProbability float64       `json:"stop_out_probability"`
	SampleSize         int           `json:"sample_size"`
}
