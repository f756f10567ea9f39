package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/crawlforge/harvester/internal/saver"
	"github.com/stretchr/testify/require"
)

func TestFileSinkWritesExactRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir)
	require.NoError(t, err)

	records := []saver.Record{
		{URL: "http://example.com/a", Input: "a"},
		{URL: "http://example.com/b", Input: "b"},
	}
	require.NoError(t, s.WriteChunk(context.Background(), 1, records))

	raw, err := os.ReadFile(filepath.Join(dir, "1.json"))
	require.NoError(t, err)

	var got []saver.Record
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, records, got)
}

func TestCountExistingChunksEmptyDir(t *testing.T) {
	n, err := CountExistingChunks(t.TempDir())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCountExistingChunksMissingDir(t *testing.T) {
	n, err := CountExistingChunks(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCountExistingChunksCountsJSONFilesOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	n, err := CountExistingChunks(dir)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

// The overwrite-refusal path (SPEC_FULL.md §4.3) calls pkg/log.Fatal, which
// terminates the process via os.Exit — not exercised here, matching the
// teacher's own untested os.Exit(1) paths in cmd/cc-backend/main.go.
