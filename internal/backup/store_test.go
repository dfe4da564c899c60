package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/tradeguard/internal/metrics"
	"github.com/yourusername/tradeguard/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(DefaultConfig(t.TempDir()), testLogger())
	require.NoError(t, err)
	return store
}

func writeLive(t *testing.T, store *Store, name, content string) {
	t.Helper()
	path := filepath.Join(store.LiveDir(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readLiveTree(t *testing.T, store *Store) map[string]string {
	t.Helper()
	tree := make(map[string]string)
	err := filepath.Walk(store.LiveDir(), func(path string, info os.FileInfo, err error) error {
		require.NoError(t, err)
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(store.LiveDir(), path)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		tree[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return tree
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	writeLive(t, store, "params.json", `{"stop_ticks": 8}`)
	writeLive(t, store, "model/weights.bin", "weights-v1")

	before := readLiveTree(t, store)

	id, err := store.Snapshot()
	require.NoError(t, err)

	// Restore with no intervening changes must leave the live configuration
	// identical to before the snapshot.
	require.NoError(t, store.Restore(id))
	assert.Equal(t, before, readLiveTree(t, store))
}

func TestRestoreRevertsChanges(t *testing.T) {
	store := newTestStore(t)
	writeLive(t, store, "params.json", `{"stop_ticks": 8}`)

	before := readLiveTree(t, store)
	id, err := store.Snapshot()
	require.NoError(t, err)

	writeLive(t, store, "params.json", `{"stop_ticks": 12}`)
	writeLive(t, store, "extra.json", "should disappear on restore")

	require.NoError(t, store.Restore(id))
	assert.Equal(t, before, readLiveTree(t, store))
}

func TestRestoreFailureDuringStagingLeavesLiveUntouched(t *testing.T) {
	store := newTestStore(t)
	writeLive(t, store, "params.json", `{"stop_ticks": 8}`)
	writeLive(t, store, "model/weights.bin", "weights-v1")

	id, err := store.Snapshot()
	require.NoError(t, err)

	writeLive(t, store, "params.json", `{"stop_ticks": 12}`)
	liveAfterChange := readLiveTree(t, store)

	// Corrupt the snapshot so staging fails partway through.
	damaged := filepath.Join(store.cfg.RootDir, snapshotsDirName, id, filesDirName, "model", "weights.bin")
	require.NoError(t, os.Remove(damaged))

	err = store.Restore(id)
	require.Error(t, err)

	// The failed restore must leave the live directory byte-identical to
	// its pre-restore state.
	assert.Equal(t, liveAfterChange, readLiveTree(t, store))

	// And no staging or retired directories may linger.
	entries, err := os.ReadDir(store.cfg.RootDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".restore-")
		assert.NotContains(t, e.Name(), ".retired-")
	}
}

func TestRestoreChecksManifestIntegrity(t *testing.T) {
	store := newTestStore(t)
	writeLive(t, store, "params.json", "original")

	id, err := store.Snapshot()
	require.NoError(t, err)

	// Tamper with the backed-up file; the checksum must catch it.
	tampered := filepath.Join(store.cfg.RootDir, snapshotsDirName, id, filesDirName, "params.json")
	require.NoError(t, os.WriteFile(tampered, []byte("tampered!"), 0o644))

	err = store.Restore(id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match manifest")
	assert.Equal(t, map[string]string{"params.json": "original"}, readLiveTree(t, store))
}

func TestRestoreUnknownSnapshot(t *testing.T) {
	store := newTestStore(t)
	err := store.Restore("19700101T000000.000000000")
	assert.ErrorIs(t, err, models.ErrSnapshotNotFound)
}

func TestRetentionPrunesOldest(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.MaxSnapshots = 3
	store, err := NewStore(cfg, testLogger())
	require.NoError(t, err)
	writeLive(t, store, "params.json", "v")

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id, err := store.Snapshot()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	manifests, err := store.List()
	require.NoError(t, err)
	require.Len(t, manifests, 3)
	assert.Equal(t, ids[2], manifests[0].SnapshotID)
	assert.Equal(t, ids[4], manifests[2].SnapshotID)
}

func TestSnapshotAndRestoreAreCounted(t *testing.T) {
	store := newTestStore(t)
	writeLive(t, store, "params.json", "v1")

	snapshotsBefore := testutil.ToFloat64(metrics.SnapshotsTotal)
	restoresBefore := histogramCount(t, metrics.RestoreDuration)

	id, err := store.Snapshot()
	require.NoError(t, err)
	require.NoError(t, store.Restore(id))

	assert.Equal(t, snapshotsBefore+1, testutil.ToFloat64(metrics.SnapshotsTotal))
	assert.Equal(t, restoresBefore+1, histogramCount(t, metrics.RestoreDuration))
}

func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestManifestStableAcrossRestarts(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(DefaultConfig(root), testLogger())
	require.NoError(t, err)
	writeLive(t, store, "params.json", "persisted")

	id, err := store.Snapshot()
	require.NoError(t, err)

	writeLive(t, store, "params.json", "changed after snapshot")

	// A fresh store over the same root must locate and apply the snapshot.
	reopened, err := NewStore(DefaultConfig(root), testLogger())
	require.NoError(t, err)

	latest, err := reopened.Latest()
	require.NoError(t, err)
	assert.Equal(t, id, latest.SnapshotID)

	require.NoError(t, reopened.Restore(id))
	assert.Equal(t, map[string]string{"params.json": "persisted"}, readLiveTree(t, reopened))
}
