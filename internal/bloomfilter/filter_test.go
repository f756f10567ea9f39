package bloomfilter

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFilter(t *testing.T, checkpointInterval time.Duration) (*Filter, string) {
	t.Helper()
	dir := t.TempDir()
	f, err := New(dir, 1024, 1000, checkpointInterval)
	require.NoError(t, err)
	return f, dir
}

func TestSetThenCheck(t *testing.T) {
	f, _ := newTestFilter(t, time.Hour)
	require.False(t, f.Check(42))
	require.NoError(t, f.Set(42))
	require.True(t, f.Check(42))
}

func TestRecoveryViaWALReplay(t *testing.T) {
	dir := t.TempDir()
	f, err := New(dir, 1024, 1000, time.Hour)
	require.NoError(t, err)

	require.NoError(t, f.Set(7))
	require.NoError(t, f.Set(8))
	require.NoError(t, f.Set(9))
	require.NoError(t, f.Close())

	// Simulate a crash before the checkpoint interval elapsed: wal.log still
	// has the three entries, checkpoint.bincode does not exist yet.
	reopened, err := New(dir, 1024, 1000, time.Hour)
	require.NoError(t, err)

	require.True(t, reopened.Check(7))
	require.True(t, reopened.Check(8))
	require.True(t, reopened.Check(9))

	walBytes, err := os.ReadFile(filepath.Join(dir, walFileName))
	require.NoError(t, err)
	require.Empty(t, walBytes, "WAL must be truncated to zero length after replay+checkpoint")
}

func TestCheckpointSurvivesRestartWithoutWAL(t *testing.T) {
	dir := t.TempDir()
	f, err := New(dir, 1024, 1000, 0)
	require.NoError(t, err)
	require.NoError(t, f.Set(123))
	require.NoError(t, f.Close())

	require.FileExists(t, filepath.Join(dir, checkpointFileName))

	reopened, err := New(dir, 1024, 1000, time.Hour)
	require.NoError(t, err)
	require.True(t, reopened.Check(123))
}

func TestCorruptWALLineIsSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, walFileName), []byte("not-a-number\n42\n"), 0o644))

	f, err := New(dir, 1024, 1000, time.Hour)
	require.NoError(t, err)
	require.True(t, f.Check(42))
}

func TestConcurrentSetAndCheck(t *testing.T) {
	f, _ := newTestFilter(t, time.Hour)

	var wg sync.WaitGroup
	for i := uint64(0); i < 200; i++ {
		wg.Add(1)
		go func(fp uint64) {
			defer wg.Done()
			require.NoError(t, f.Set(fp))
			_ = f.Check(fp)
		}(i)
	}
	wg.Wait()

	for i := uint64(0); i < 200; i++ {
		require.True(t, f.Check(i))
	}
}
