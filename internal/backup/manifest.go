package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/tradeguard/internal/models"
)

// manifestFileName is the on-disk manifest convention. The format must stay
// stable across process restarts: a restore initiated in one run must be
// able to locate and apply a snapshot created in a prior run.
const manifestFileName = "manifest.json"

// ManifestEntry records one backed-up file's identity and size
type ManifestEntry struct {
	Path   string `json:"path"` // relative to the live directory
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest describes one snapshot of the live artifact directory
type Manifest struct {
	SnapshotID string          `json:"snapshot_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Files      []ManifestEntry `json:"files"`
}

// writeManifest persists the manifest inside the snapshot directory
func writeManifest(snapshotDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(snapshotDir, manifestFileName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// readManifest loads the manifest of a snapshot directory
func readManifest(snapshotDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(snapshotDir, manifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return m, nil
}
