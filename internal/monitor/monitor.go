// Package monitor periodically logs crawl/queue/bloom stats, a
// SUPPLEMENTED FEATURE (SPEC_FULL.md) grounded on the teacher's
// internal/taskManager gocron usage, generalized away from its package-level
// scheduler singleton per the anti-singleton design note in SPEC_FULL.md §9.
package monitor

import (
	"context"
	"time"

	"github.com/crawlforge/harvester/internal/bloomfilter"
	"github.com/crawlforge/harvester/internal/store"
	"github.com/crawlforge/harvester/pkg/log"
	"github.com/go-co-op/gocron/v2"
)

// Monitor wraps a gocron.Scheduler that logs frontier depth, saver buffer
// depth, and the bloom filter's approximate entry count on a fixed interval.
type Monitor struct {
	scheduler gocron.Scheduler
	frontier  *store.Queue
	buffer    *store.Queue
	bloom     *bloomfilter.Filter
}

// New constructs a Monitor. Call Start to begin logging every interval.
func New(frontier, buffer *store.Queue, bloom *bloomfilter.Filter) (*Monitor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Monitor{scheduler: scheduler, frontier: frontier, buffer: buffer, bloom: bloom}, nil
}

// Start registers the periodic stats job and starts the scheduler.
func (m *Monitor) Start(interval time.Duration) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(m.logStats),
	)
	if err != nil {
		return err
	}
	m.scheduler.Start()
	return nil
}

// Shutdown stops the scheduler.
func (m *Monitor) Shutdown() error {
	return m.scheduler.Shutdown()
}

func (m *Monitor) logStats() {
	ctx := context.Background()

	frontierLen, err := m.frontier.Len(ctx)
	if err != nil {
		log.Warnf("monitor: reading frontier length: %v", err)
	}
	bufferLen, err := m.buffer.Len(ctx)
	if err != nil {
		log.Warnf("monitor: reading saver buffer length: %v", err)
	}

	log.Infof("monitor: frontier=%d saver_buffer=%d bloom_approx_entries=%d", frontierLen, bufferLen, m.bloom.ApproxCount())
}
