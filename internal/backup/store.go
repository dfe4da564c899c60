// Package backup provides atomic snapshot and restore of the live
// configuration/model artifacts. A rollback must never leave the live
// directory in a half-updated state.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradeguard/internal/metrics"
	"github.com/yourusername/tradeguard/internal/models"
)

const (
	liveDirName      = "current"
	snapshotsDirName = "snapshots"
	filesDirName     = "files"
	snapshotIDFormat = "20060102T150405.000000000"
)

// Config defines where artifacts live and how many snapshots are retained
type Config struct {
	RootDir      string `json:"root_dir"`
	MaxSnapshots int    `json:"max_snapshots"`
}

// DefaultConfig returns the default retention policy
func DefaultConfig(rootDir string) Config {
	return Config{RootDir: rootDir, MaxSnapshots: 10}
}

// Store manages versioned snapshots of the live artifact directory
type Store struct {
	cfg    Config
	mu     sync.Mutex
	logger *logrus.Logger
}

// NewStore creates the store and its directory layout
func NewStore(cfg Config, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(cfg.RootDir, liveDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create live directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.RootDir, snapshotsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}
	return &Store{cfg: cfg, logger: logger}, nil
}

// LiveDir returns the directory holding the current artifacts
func (s *Store) LiveDir() string {
	return filepath.Join(s.cfg.RootDir, liveDirName)
}

// Snapshot copies all files constituting the current state into a new
// versioned directory with a manifest, and returns the snapshot id. The
// snapshot directory is built under a temporary name and published with a
// single rename so a crash mid-copy never leaves a readable partial
// snapshot.
func (s *Store) Snapshot() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := time.Now().UTC().Format(snapshotIDFormat)
	finalDir := filepath.Join(s.cfg.RootDir, snapshotsDirName, id)
	tmpDir := filepath.Join(s.cfg.RootDir, snapshotsDirName, ".tmp-"+id)

	manifest := &Manifest{SnapshotID: id, CreatedAt: time.Now().UTC()}

	if err := os.MkdirAll(filepath.Join(tmpDir, filesDirName), 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot staging dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }

	err := filepath.Walk(s.LiveDir(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.LiveDir(), path)
		if err != nil {
			return err
		}
		dst := filepath.Join(tmpDir, filesDirName, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		sum, size, err := copyFile(path, dst)
		if err != nil {
			return err
		}
		manifest.Files = append(manifest.Files, ManifestEntry{Path: rel, Size: size, SHA256: sum})
		return nil
	})
	if err != nil {
		cleanup()
		return "", fmt.Errorf("failed to copy live files into snapshot: %w", err)
	}

	if err := writeManifest(tmpDir, manifest); err != nil {
		cleanup()
		return "", err
	}

	if err := os.Rename(tmpDir, finalDir); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to publish snapshot: %w", err)
	}

	metrics.RecordSnapshot()
	s.logger.WithFields(logrus.Fields{
		"snapshot_id": id,
		"file_count":  len(manifest.Files),
	}).Info("Artifact snapshot created")

	if err := s.pruneLocked(); err != nil {
		s.logger.WithError(err).Warn("Snapshot pruning failed")
	}

	return id, nil
}

// Restore atomically replaces the live directory with the contents of the
// given snapshot. The snapshot is staged in full first; any I/O failure
// during staging aborts before the swap, leaving the live directory
// untouched. Only after staging succeeds is the live directory swapped out
// in a directory-level rename.
func (s *Store) Restore(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	snapshotDir := filepath.Join(s.cfg.RootDir, snapshotsDirName, id)
	manifest, err := readManifest(snapshotDir)
	if err != nil {
		return err
	}

	stageDir := filepath.Join(s.cfg.RootDir, ".restore-"+id)
	if err := os.RemoveAll(stageDir); err != nil {
		return fmt.Errorf("failed to clear restore staging dir: %w", err)
	}
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return fmt.Errorf("failed to create restore staging dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(stageDir) }

	for _, entry := range manifest.Files {
		src := filepath.Join(snapshotDir, filesDirName, entry.Path)
		dst := filepath.Join(stageDir, entry.Path)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			cleanup()
			return fmt.Errorf("failed to stage %s: %w", entry.Path, err)
		}
		sum, size, err := copyFile(src, dst)
		if err != nil {
			cleanup()
			return fmt.Errorf("failed to stage %s: %w", entry.Path, err)
		}
		if size != entry.Size || sum != entry.SHA256 {
			cleanup()
			return fmt.Errorf("staged file %s does not match manifest (size %d vs %d)", entry.Path, size, entry.Size)
		}
	}

	// Staging is complete and verified; perform the swap. From here the
	// worst crash outcome is a missing live dir with a fully staged
	// replacement beside it, never a half-updated live dir.
	retired := filepath.Join(s.cfg.RootDir, ".retired-"+id)
	if err := os.RemoveAll(retired); err != nil {
		cleanup()
		return fmt.Errorf("failed to clear retired dir: %w", err)
	}
	if err := os.Rename(s.LiveDir(), retired); err != nil {
		cleanup()
		return fmt.Errorf("failed to retire live directory: %w", err)
	}
	if err := os.Rename(stageDir, s.LiveDir()); err != nil {
		// Put the old live directory back; the restore failed whole.
		if undoErr := os.Rename(retired, s.LiveDir()); undoErr != nil {
			return fmt.Errorf("failed to swap in staged restore and failed to undo: swap=%w, undo=%v", err, undoErr)
		}
		cleanup()
		return fmt.Errorf("failed to swap in staged restore: %w", err)
	}
	if err := os.RemoveAll(retired); err != nil {
		s.logger.WithError(err).Warn("Failed to remove retired live directory")
	}

	metrics.RecordRestoreDuration(time.Since(started).Seconds())
	s.logger.WithFields(logrus.Fields{
		"snapshot_id": id,
		"file_count":  len(manifest.Files),
	}).Info("Artifact snapshot restored")

	return nil
}

// List returns manifests of all retained snapshots, oldest first
func (s *Store) List() ([]*Manifest, error) {
	entries, err := os.ReadDir(filepath.Join(s.cfg.RootDir, snapshotsDirName))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	manifests := make([]*Manifest, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		m, err := readManifest(filepath.Join(s.cfg.RootDir, snapshotsDirName, entry.Name()))
		if err != nil {
			s.logger.WithError(err).WithField("snapshot_id", entry.Name()).Warn("Skipping unreadable snapshot")
			continue
		}
		manifests = append(manifests, m)
	}
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].SnapshotID < manifests[j].SnapshotID
	})
	return manifests, nil
}

// Latest returns the most recent snapshot manifest
func (s *Store) Latest() (*Manifest, error) {
	manifests, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(manifests) == 0 {
		return nil, models.ErrSnapshotNotFound
	}
	return manifests[len(manifests)-1], nil
}

// pruneLocked removes the oldest snapshots beyond the retention bound
func (s *Store) pruneLocked() error {
	if s.cfg.MaxSnapshots <= 0 {
		return nil
	}
	manifests, err := s.List()
	if err != nil {
		return err
	}
	for len(manifests) > s.cfg.MaxSnapshots {
		victim := manifests[0]
		manifests = manifests[1:]
		dir := filepath.Join(s.cfg.RootDir, snapshotsDirName, victim.SnapshotID)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to prune snapshot %s: %w", victim.SnapshotID, err)
		}
		s.logger.WithField("snapshot_id", victim.SnapshotID).Info("Pruned oldest snapshot")
	}
	return nil
}

// copyFile copies src to dst and returns the sha256 and byte count
func copyFile(src, dst string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", 0, err
	}

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hash), in)
	if err != nil {
		out.Close()
		return "", 0, err
	}
	if err := out.Close(); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}
