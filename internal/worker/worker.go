// Package worker implements the harvester's per-URL processing loop:
// pop a frontier URL, fetch it, extract training input/labels/outlinks, save
// and re-enqueue (SPEC_FULL.md §4.5).
package worker

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/crawlforge/harvester/internal/bloomfilter"
	"github.com/crawlforge/harvester/internal/extractor"
	"github.com/crawlforge/harvester/internal/fetch"
	"github.com/crawlforge/harvester/internal/fingerprint"
	"github.com/crawlforge/harvester/internal/labelmap"
	"github.com/crawlforge/harvester/internal/saver"
	"github.com/crawlforge/harvester/internal/store"
	"github.com/crawlforge/harvester/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_fetch_outcomes_total",
		Help: "Outcomes of page fetch attempts, by result.",
	}, []string{"result"})

	extractOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_extract_outcomes_total",
		Help: "Outcomes of training-input extraction, by result.",
	}, []string{"result"})

	outlinksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_outlinks_enqueued_total",
		Help: "Outlinks newly added to the frontier.",
	})
)

// Worker repeatedly pops a URL from the frontier and processes it.
type Worker struct {
	id        int
	frontier  *store.Queue
	bloom     *bloomfilter.Filter
	saver     *saver.Saver
	labelMap  *labelmap.LabelMap
	fetcher   *fetch.Client
	checkWait time.Duration
}

// New constructs a Worker sharing the given collaborators, per the
// anti-singleton design note in SPEC_FULL.md §9.
func New(id int, frontier *store.Queue, bloom *bloomfilter.Filter, sv *saver.Saver, labelMap *labelmap.LabelMap, fetcher *fetch.Client, checkWait time.Duration) *Worker {
	return &Worker{
		id:        id,
		frontier:  frontier,
		bloom:     bloom,
		saver:     sv,
		labelMap:  labelMap,
		fetcher:   fetcher,
		checkWait: checkWait,
	}
}

// Loop pops URLs from the frontier until ctx is cancelled. A fatal error
// (KV store failure, corrupt persisted URL) terminates the process via
// pkg/log.Fatal, per SPEC_FULL.md §4.5.
func (w *Worker) Loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		entry, err := w.frontier.PopMin(ctx)
		if err != nil {
			log.Fatalf("worker %d: popping frontier: %v", w.id, err)
		}
		if entry == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.checkWait):
			}
			continue
		}

		rawURL := string(entry.Value)
		target, err := url.Parse(rawURL)
		if err != nil {
			log.Fatalf("worker %d: persisted frontier entry %q is not a valid URL: %v", w.id, rawURL, err)
		}

		if err := w.process(ctx, target); err != nil {
			log.Warnf("worker %d: processing %s: %v", w.id, rawURL, err)
		}
	}
}

// process fetches target, extracts training input/labels/outlinks, saves the
// record if any labels were found, and enqueues new outlinks.
func (w *Worker) process(ctx context.Context, target *url.URL) error {
	body, err := w.fetcher.Get(ctx, target.String())
	if err != nil {
		fetchOutcomes.WithLabelValues("error").Inc()
		return fmt.Errorf("fetching: %w", err)
	}
	fetchOutcomes.WithLabelValues("ok").Inc()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		extractOutcomes.WithLabelValues("parse_error").Inc()
		return fmt.Errorf("parsing html: %w", err)
	}

	input := extractor.ExtractTrainingInput(doc.Nodes[0])
	if input == "" {
		extractOutcomes.WithLabelValues("empty").Inc()
		return fmt.Errorf("no training input for %s", target)
	}
	extractOutcomes.WithLabelValues("ok").Inc()

	labels := extractor.ExtractLabels(doc, w.labelMap, target.Path)
	if len(labels) > 0 {
		record := saver.Record{
			URL:    target.String(),
			Raw:    string(body),
			Input:  input,
			Labels: labels,
		}
		if err := w.saver.Add(ctx, record); err != nil {
			return fmt.Errorf("buffering record: %w", err)
		}
	}

	for _, link := range extractor.ExtractOutlinks(doc, target, w.labelMap) {
		if err := w.addURL(ctx, link); err != nil {
			log.Warnf("worker %d: enqueueing outlink %s: %v", w.id, link, err)
		}
	}
	return nil
}

// addURL checks and sets the URL's fingerprint in the bloom filter, pushing
// it to the frontier if newly seen.
func (w *Worker) addURL(ctx context.Context, link *url.URL) error {
	added, err := EnqueueIfNew(ctx, w.bloom, w.frontier, link)
	if err != nil {
		return err
	}
	if added {
		outlinksEnqueued.Inc()
	}
	return nil
}

// EnqueueIfNew checks and sets link's fingerprint in bloom, pushing it to
// frontier if newly seen, and reports whether it was newly added. The
// check-then-set race across bloom and frontier is accepted as non-atomic
// per SPEC_FULL.md §4.5. Shared by Worker.addURL and the orchestrator's
// frontier-seeding path so both follow the same dedup-then-enqueue rule.
func EnqueueIfNew(ctx context.Context, bloom *bloomfilter.Filter, frontier *store.Queue, link *url.URL) (bool, error) {
	fp := fingerprint.Hash64String(link.String())
	if bloom.Check(fp) {
		return false, nil
	}
	if err := bloom.Set(fp); err != nil {
		return false, fmt.Errorf("marking fingerprint: %w", err)
	}
	if _, err := frontier.Push(ctx, []byte(link.String())); err != nil {
		return false, fmt.Errorf("pushing to frontier: %w", err)
	}
	return true, nil
}
