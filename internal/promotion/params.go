package promotion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/tradeguard/internal/models"
)

const paramsFileName = "parameters.json"

// ActiveParameters is the immutable live configuration the execution hot
// path reads. Promotions never mutate it in place; a promotion builds a new
// value and swaps it in atomically.
type ActiveParameters struct {
	Values     map[string]float64 `json:"values"`
	ArtifactID string             `json:"artifact_id,omitempty"`
	AppliedAt  time.Time          `json:"applied_at"`
}

// Value returns the live parameter value for a cohort
func (p *ActiveParameters) Value(cohort models.CohortKey) (float64, bool) {
	v, ok := p.Values[cohort.String()]
	return v, ok
}

func (p *ActiveParameters) clone() *ActiveParameters {
	next := &ActiveParameters{
		Values:     make(map[string]float64, len(p.Values)),
		ArtifactID: p.ArtifactID,
		AppliedAt:  p.AppliedAt,
	}
	for k, v := range p.Values {
		next.Values[k] = v
	}
	return next
}

// loadParameters reads the live parameter file. A missing file is an empty
// configuration, not an error.
func loadParameters(liveDir string) (*ActiveParameters, error) {
	data, err := os.ReadFile(filepath.Join(liveDir, paramsFileName))
	if os.IsNotExist(err) {
		return &ActiveParameters{Values: make(map[string]float64)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read live parameters: %w", err)
	}

	var params ActiveParameters
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse live parameters: %w", err)
	}
	if params.Values == nil {
		params.Values = make(map[string]float64)
	}
	return &params, nil
}

// saveParameters writes the parameter file via a temp file and rename so a
// crash mid-write never leaves a truncated live file.
func saveParameters(liveDir string, params *ActiveParameters) error {
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode live parameters: %w", err)
	}

	tmp := filepath.Join(liveDir, paramsFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write live parameters: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(liveDir, paramsFileName)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish live parameters: %w", err)
	}
	return nil
}
