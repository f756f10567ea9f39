// Package sink provides ChunkSink implementations for internal/saver: a
// local-file sink (the spec's required behavior) and two optional sinks that
// wrap it to additionally mirror chunks to S3 or announce them over NATS.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/crawlforge/harvester/internal/saver"
	"github.com/crawlforge/harvester/pkg/log"
)

// FileSink writes each chunk to <dir>/<chunkIndex>.json and refuses to
// overwrite an existing file — SPEC_FULL.md §4.3's "deliberate anti-footgun".
type FileSink struct {
	dir string
}

// NewFileSink creates dir if needed and returns a FileSink rooted there.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: creating save dir %s: %w", dir, err)
	}
	return &FileSink{dir: dir}, nil
}

func (f *FileSink) WriteChunk(ctx context.Context, chunkIndex int64, records []saver.Record) error {
	path := filepath.Join(f.dir, fmt.Sprintf("%d.json", chunkIndex))

	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			log.Fatalf("sink: refusing to overwrite existing chunk file %s", path)
		}
		return fmt.Errorf("sink: opening %s: %w", path, err)
	}
	defer fh.Close()

	if err := json.NewEncoder(fh).Encode(records); err != nil {
		return fmt.Errorf("sink: writing %s: %w", path, err)
	}
	return nil
}

// CountExistingChunks counts the *.json files already present in dir, giving
// the starting chunk index per SPEC_FULL.md §3 ("1 + count(existing files in
// output directory)"). A missing directory counts as zero.
func CountExistingChunks(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("sink: reading save dir %s: %w", dir, err)
	}
	var n int64
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			n++
		}
	}
	return n, nil
}
