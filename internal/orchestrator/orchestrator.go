// Package orchestrator wires together the harvester's components and runs
// the crawl: load the label map, open the store and bloom filter,
// seed the frontier, spawn the saver and worker pool (SPEC_FULL.md §4.6).
package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/crawlforge/harvester/internal/bloomfilter"
	"github.com/crawlforge/harvester/internal/config"
	"github.com/crawlforge/harvester/internal/fetch"
	"github.com/crawlforge/harvester/internal/labelmap"
	"github.com/crawlforge/harvester/internal/metricsserver"
	"github.com/crawlforge/harvester/internal/monitor"
	"github.com/crawlforge/harvester/internal/saver"
	"github.com/crawlforge/harvester/internal/saver/sink"
	"github.com/crawlforge/harvester/internal/store"
	"github.com/crawlforge/harvester/internal/worker"
	"github.com/crawlforge/harvester/pkg/log"
	"github.com/nats-io/nats.go"
)

// Orchestrator owns every long-lived collaborator and constructs workers by
// passing them explicitly, per the anti-singleton design note in
// SPEC_FULL.md §9.
type Orchestrator struct {
	cfg      *config.Config
	labelMap *labelmap.LabelMap
	db       *store.DB
	frontier *store.Queue
	buffer   *store.Queue
	bloom    *bloomfilter.Filter
	saver    *saver.Saver
	fetcher  *fetch.Client

	metricsServer *metricsserver.Server
	monitorSvc    *monitor.Monitor
}

// New loads the label map named by cfg, opens the store and bloom filter, and builds
// the chunk sink chain (file, optionally S3-mirrored and NATS-notified).
func New(ctx context.Context, cfg *config.Config) (*Orchestrator, error) {
	lm, err := labelmap.Load(cfg.LabelMap)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: loading label map: %w", err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: opening store: %w", err)
	}

	frontier := store.NewQueue(db, "url_queue")
	buffer := store.NewQueue(db, "saved_data")

	bf, err := bloomfilter.New(cfg.FilterPath, cfg.FilterBytes, cfg.FilterExpectedEntries, time.Duration(cfg.FilterCheckpointSecs)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: opening bloom filter: %w", err)
	}

	chunkSink, err := buildChunkSink(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: building chunk sink: %w", err)
	}

	startingChunkIndex, err := sink.CountExistingChunks(cfg.SavePath)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: counting existing chunks: %w", err)
	}

	sv := saver.New(buffer, chunkSink, int64(cfg.ChunkSize), time.Duration(cfg.SaverCheckSecs)*time.Second, startingChunkIndex+1)

	fetcher := fetch.New(lm.Headers, 30*time.Second)

	o := &Orchestrator{
		cfg:      cfg,
		labelMap: lm,
		db:       db,
		frontier: frontier,
		buffer:   buffer,
		bloom:    bf,
		saver:    sv,
		fetcher:  fetcher,
	}

	if cfg.MetricsAddr != "" {
		o.metricsServer = metricsserver.New(cfg.MetricsAddr)
	}

	if cfg.MonitorIntervalSecs > 0 {
		m, err := monitor.New(frontier, buffer, bf)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: building monitor: %w", err)
		}
		o.monitorSvc = m
	}

	return o, nil
}

func buildChunkSink(ctx context.Context, cfg *config.Config) (saver.ChunkSink, error) {
	var chunkSink saver.ChunkSink
	fileSink, err := sink.NewFileSink(cfg.SavePath)
	if err != nil {
		return nil, err
	}
	chunkSink = fileSink

	if cfg.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		s3Client := s3.NewFromConfig(awsCfg)
		chunkSink = sink.NewS3MirrorSink(chunkSink, s3Client, cfg.S3Bucket, cfg.S3Prefix)
	}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		chunkSink = sink.NewNATSNotifySink(chunkSink, nc, cfg.NATSSubject)
	}

	return chunkSink, nil
}

// Run seeds the frontier if empty, spawns the saver and worker pool, and
// blocks until ctx is cancelled. Per SPEC_FULL.md §4.6, an empty frontier
// after seeding is a fatal startup error.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.seedIfEmpty(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.saver.Run(ctx)
	}()

	if o.metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.metricsServer.Serve(ctx); err != nil {
				log.Errorf("orchestrator: metrics server: %v", err)
			}
		}()
	}

	if o.monitorSvc != nil {
		if err := o.monitorSvc.Start(time.Duration(o.cfg.MonitorIntervalSecs) * time.Second); err != nil {
			return fmt.Errorf("orchestrator: starting monitor: %w", err)
		}
		defer o.monitorSvc.Shutdown()
	}

	workerCheck := time.Duration(o.cfg.WorkerCheckMs) * time.Millisecond
	for i := 0; i < o.cfg.Workers; i++ {
		w := worker.New(i, o.frontier, o.bloom, o.saver, o.labelMap, o.fetcher, workerCheck)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Loop(ctx)
		}()
	}

	wg.Wait()
	return nil
}

// seedIfEmpty adds every label-map rule's abs_root_url to the frontier if
// it's currently empty, aborting fatally if it is still empty afterwards.
func (o *Orchestrator) seedIfEmpty(ctx context.Context) error {
	empty, err := o.frontier.IsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("checking frontier: %w", err)
	}
	if !empty {
		return nil
	}

	for _, rule := range o.labelMap.Rules {
		root, err := url.Parse(rule.AbsRootURL)
		if err != nil {
			log.Warnf("orchestrator: skipping invalid abs_root_url %q: %v", rule.AbsRootURL, err)
			continue
		}
		if err := o.addSeedURL(ctx, root); err != nil {
			log.Warnf("orchestrator: seeding %s: %v", root, err)
		}
	}

	stillEmpty, err := o.frontier.IsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("checking frontier after seeding: %w", err)
	}
	if stillEmpty {
		log.Fatalf("orchestrator: frontier is empty after seeding %d root url(s) from the label map: no work to do", len(o.labelMap.Rules))
	}
	return nil
}

func (o *Orchestrator) addSeedURL(ctx context.Context, target *url.URL) error {
	_, err := worker.EnqueueIfNew(ctx, o.bloom, o.frontier, target)
	return err
}

// Close releases the store handle. Call after Run returns.
func (o *Orchestrator) Close() error {
	return o.db.Close()
}
