package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/crawlforge/harvester/internal/saver"
	"github.com/crawlforge/harvester/pkg/log"
)

// S3MirrorSink wraps another ChunkSink and, after it succeeds, best-effort
// mirrors the same chunk to an S3 bucket. A mirror failure is logged but
// never fails the write — the local file is the chunk's durable record, not
// the mirror.
type S3MirrorSink struct {
	inner  saver.ChunkSink
	client *s3.Client
	bucket string
	prefix string
}

// NewS3MirrorSink wraps inner with an S3 mirror targeting bucket/prefix.
func NewS3MirrorSink(inner saver.ChunkSink, client *s3.Client, bucket, prefix string) *S3MirrorSink {
	return &S3MirrorSink{inner: inner, client: client, bucket: bucket, prefix: prefix}
}

func (s *S3MirrorSink) WriteChunk(ctx context.Context, chunkIndex int64, records []saver.Record) error {
	if err := s.inner.WriteChunk(ctx, chunkIndex, records); err != nil {
		return err
	}

	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("sink: marshaling chunk %d for s3 mirror: %w", chunkIndex, err)
	}

	key := fmt.Sprintf("%s%d.json", s.prefix, chunkIndex)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		log.Errorf("sink: mirroring chunk %d to s3://%s/%s: %v", chunkIndex, s.bucket, key, err)
	}
	return nil
}
