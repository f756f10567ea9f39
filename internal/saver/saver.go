// Package saver implements the chunked, durably-buffered output writer
// (SPEC_FULL.md §4.3). Records are pushed onto a durable internal/store.Queue
// as soon as they are produced; a background loop drains the queue in
// fixed-size chunks and hands each chunk to a pluggable ChunkSink.
package saver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/crawlforge/harvester/internal/store"
	"github.com/crawlforge/harvester/pkg/log"
)

// Record is one saved training example.
type Record struct {
	URL    string         `json:"url"`
	Raw    string         `json:"raw"`
	Input  string         `json:"input"`
	Labels map[string]any `json:"labels"`
}

// ChunkSink is the "write a chunk" capability, provided at construction
// rather than passed as a callback — see SPEC_FULL.md §9.
type ChunkSink interface {
	WriteChunk(ctx context.Context, chunkIndex int64, records []Record) error
}

// Saver buffers records durably and periodically flushes fixed-size chunks
// to a ChunkSink.
type Saver struct {
	queue         *store.Queue
	sink          ChunkSink
	chunkSize     int64
	checkInterval time.Duration

	queueLen   atomic.Int64
	chunkIndex atomic.Int64
}

// New constructs a Saver. startingChunkIndex is the index of the next chunk
// to be written, normally 1+count(existing output files) per SPEC_FULL.md §3.
func New(queue *store.Queue, sink ChunkSink, chunkSize int64, checkInterval time.Duration, startingChunkIndex int64) *Saver {
	s := &Saver{
		queue:         queue,
		sink:          sink,
		chunkSize:     chunkSize,
		checkInterval: checkInterval,
	}
	s.chunkIndex.Store(startingChunkIndex)
	return s
}

// Add serializes record and durably appends it to the buffer.
func (s *Saver) Add(ctx context.Context, record Record) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("saver: marshaling record: %w", err)
	}
	if _, err := s.queue.Push(ctx, value); err != nil {
		return fmt.Errorf("saver: buffering record: %w", err)
	}
	s.queueLen.Add(1)
	return nil
}

// Run drains full chunks from the buffer until ctx is cancelled. It is meant
// to be launched with `go s.Run(ctx)` on its own goroutine — see
// SPEC_FULL.md §5 for why a goroutine satisfies the "dedicated
// blocking-capable thread" requirement.
func (s *Saver) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if s.queueLen.Load() >= s.chunkSize {
			s.drainOneChunk(ctx)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.checkInterval):
		}
	}
}

func (s *Saver) drainOneChunk(ctx context.Context) {
	s.queueLen.Add(-s.chunkSize)

	// Every entry PopMinN returns was already committed-deleted from the
	// durable buffer by the time it's in this slice, whether or not popErr
	// is set, so it must be written out here: there is nowhere else left
	// that still durably holds it.
	entries, popErr := s.queue.PopMinN(ctx, int(s.chunkSize))
	if len(entries) == 0 && popErr != nil {
		// Nothing was popped, so the whole decrement is given back.
		s.queueLen.Add(s.chunkSize)
		log.Errorf("saver: popping chunk from buffer: %v", popErr)
		return
	}
	if popErr == nil && int64(len(entries)) < s.chunkSize {
		log.Fatalf("saver: popped %d of %d buffered records: queue_len counter has diverged from the durable buffer", len(entries), s.chunkSize)
	}

	records := make([]Record, len(entries))
	for i, entry := range entries {
		if err := json.Unmarshal(entry.Value, &records[i]); err != nil {
			log.Fatalf("saver: decoding buffered record %d: %v", entry.ID, err)
		}
	}

	chunkIndex := s.chunkIndex.Load()
	if err := s.sink.WriteChunk(ctx, chunkIndex, records); err != nil {
		log.Fatalf("saver: writing chunk %d: %v", chunkIndex, err)
	}
	s.chunkIndex.Add(1)

	if popErr != nil {
		// Restore the counter for the records this pass never reached, so
		// Run retries them instead of leaving queueLen understating the
		// real buffer depth.
		s.queueLen.Add(s.chunkSize - int64(len(entries)))
		log.Errorf("saver: popping chunk from buffer: %v (wrote %d of %d as a short chunk)", popErr, len(entries), s.chunkSize)
	}
}
