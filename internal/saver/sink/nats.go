package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crawlforge/harvester/internal/saver"
	"github.com/crawlforge/harvester/pkg/log"
	"github.com/nats-io/nats.go"
)

// ChunkSavedEvent is published after a chunk has been written successfully.
type ChunkSavedEvent struct {
	ChunkIndex  int64 `json:"chunk_index"`
	RecordCount int   `json:"record_count"`
}

// NATSNotifySink wraps another ChunkSink and publishes a ChunkSavedEvent
// after each successful write. A publish failure is logged, not fatal — the
// notification is advisory, the chunk file is already durable.
type NATSNotifySink struct {
	inner   saver.ChunkSink
	conn    *nats.Conn
	subject string
}

// NewNATSNotifySink wraps inner, publishing to subject on conn after writes.
func NewNATSNotifySink(inner saver.ChunkSink, conn *nats.Conn, subject string) *NATSNotifySink {
	return &NATSNotifySink{inner: inner, conn: conn, subject: subject}
}

func (n *NATSNotifySink) WriteChunk(ctx context.Context, chunkIndex int64, records []saver.Record) error {
	if err := n.inner.WriteChunk(ctx, chunkIndex, records); err != nil {
		return err
	}

	event := ChunkSavedEvent{ChunkIndex: chunkIndex, RecordCount: len(records)}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sink: marshaling chunk-saved event for chunk %d: %w", chunkIndex, err)
	}

	if err := n.conn.Publish(n.subject, payload); err != nil {
		log.Errorf("sink: publishing chunk-saved notification for chunk %d: %v", chunkIndex, err)
	}
	return nil
}
