package saver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/crawlforge/harvester/internal/store"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	chunks map[int64][]Record
}

func newRecordingSink() *recordingSink {
	return &recordingSink{chunks: make(map[int64][]Record)}
}

func (r *recordingSink) WriteChunk(ctx context.Context, chunkIndex int64, records []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Record, len(records))
	copy(cp, records)
	r.chunks[chunkIndex] = cp
	return nil
}

func openTestQueue(t *testing.T) *store.Queue {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewQueue(db, "saved_data")
}

func TestSaverEmitsExactChunkSize(t *testing.T) {
	q := openTestQueue(t)
	sink := newRecordingSink()
	s := New(q, sink, 3, 10*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Add(ctx, Record{URL: "u"}))
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.chunks[1]) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestSaverChunkIndexIncreasesStrictlyFromStartingValue(t *testing.T) {
	q := openTestQueue(t)
	sink := newRecordingSink()
	s := New(q, sink, 2, 5*time.Millisecond, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Add(ctx, Record{URL: "u"}))
	}

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.chunks) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Contains(t, sink.chunks, int64(5))
	require.Contains(t, sink.chunks, int64(6))
}

func TestSaverRunWritesNothingWhenBufferBelowChunkSize(t *testing.T) {
	q := openTestQueue(t)
	sink := newRecordingSink()
	s := New(q, sink, 10, 5*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Add(context.Background(), Record{URL: "u"}))

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Empty(t, sink.chunks)
}
