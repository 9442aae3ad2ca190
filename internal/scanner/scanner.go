package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"frameworks/crowsnest/internal/collectors"
	"frameworks/crowsnest/internal/content"
	"frameworks/crowsnest/internal/insight"
	"frameworks/crowsnest/internal/publish"
	"frameworks/crowsnest/internal/sink"
	"frameworks/crowsnest/internal/triage"
	"frameworks/crowsnest/pkg/llm"
	"frameworks/crowsnest/pkg/logging"
)

const (
	defaultInterval          = 60 * time.Second
	defaultMinInterval       = 30 * time.Second
	defaultMaxInterval       = 300 * time.Second
	defaultActivityThreshold = 10

	shrinkFactor = 0.8
	growFactor   = 1.2

	maxParallelCollectors = 4
	batchNoteLimit        = 200
)

// Config tunes the adaptive scan cadence.
type Config struct {
	Interval          time.Duration
	MinInterval       time.Duration
	MaxInterval       time.Duration
	ActivityThreshold int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = defaultMinInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = defaultMaxInterval
	}
	if c.ActivityThreshold <= 0 {
		c.ActivityThreshold = defaultActivityThreshold
	}
	return c
}

// Deps wires the pipeline stages the scanner drives. Store and Publisher
// tolerate nil, so unconfigured backends simply drop their writes.
type Deps struct {
	Collectors []collectors.Collector
	Dedupe     *triage.Deduplicator
	Batcher    *triage.Batcher
	Scorer     *triage.Scorer
	Aggregator *insight.Aggregator
	Summarizer llm.Summarizer
	Store      *sink.Store
	Publisher  *publish.Publisher
	Logger     logging.Logger
	Metrics    *Metrics
}

// State is a snapshot of loop pacing for status reporting.
type State struct {
	Interval          string    `json:"interval"`
	MinInterval       string    `json:"min_interval"`
	MaxInterval       string    `json:"max_interval"`
	ActivityThreshold int       `json:"activity_threshold"`
	Cycles            uint64    `json:"cycles"`
	TotalItems        uint64    `json:"total_items"`
	LastCycle         time.Time `json:"last_cycle"`
}

// Scanner runs the collect, triage, and aggregation loop on an interval that
// adapts to observed activity. Busy cycles shrink the interval toward the
// floor, empty cycles stretch it toward the ceiling.
type Scanner struct {
	cfg        Config
	collectors []collectors.Collector
	dedupe     *triage.Deduplicator
	batcher    *triage.Batcher
	scorer     *triage.Scorer
	aggregator *insight.Aggregator
	summarizer llm.Summarizer
	store      *sink.Store
	publisher  *publish.Publisher
	logger     logging.Logger
	metrics    *Metrics

	mu         sync.Mutex
	interval   time.Duration
	cycles     uint64
	totalItems uint64
	lastCycle  time.Time
}

// New builds a scanner. Zero config fields select the defaults.
func New(cfg Config, deps Deps) *Scanner {
	cfg = cfg.withDefaults()
	s := &Scanner{
		cfg:        cfg,
		collectors: deps.Collectors,
		dedupe:     deps.Dedupe,
		batcher:    deps.Batcher,
		scorer:     deps.Scorer,
		aggregator: deps.Aggregator,
		summarizer: deps.Summarizer,
		store:      deps.Store,
		publisher:  deps.Publisher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		interval:   cfg.Interval,
	}
	s.metrics.setInterval(cfg.Interval)
	return s
}

// Run drives scan cycles until ctx is canceled. Cycle failures back the loop
// off to the maximum interval; they never terminate it.
func (s *Scanner) Run(ctx context.Context) {
	s.logger.WithFields(logging.Fields{
		"collectors": len(s.collectors),
		"interval":   s.cfg.Interval.String(),
		"summarizer": s.summarizer.Name(),
	}).Info("Scan loop started")

	for {
		count, err := s.runCycle(ctx)
		if ctx.Err() != nil {
			s.logger.Info("Scan loop stopped")
			return
		}

		wait := s.pace(count, err)
		select {
		case <-ctx.Done():
			s.logger.Info("Scan loop stopped")
			return
		case <-time.After(wait):
		}
	}
}

// runCycle executes one collect, dedup, batch, and aggregation round and
// returns the number of items the collectors produced this cycle.
func (s *Scanner) runCycle(ctx context.Context) (count int, err error) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan cycle panic: %v", r)
			s.logger.WithField("panic", fmt.Sprint(r)).Error("Scan cycle panic")
			s.metrics.cycle("panic", time.Since(started))
		}
	}()

	items, err := s.collect(ctx)
	if err != nil {
		s.metrics.cycle("error", time.Since(started))
		s.store.LogAction(ctx, "scanner", "cycle", err.Error(), "error")
		return 0, err
	}

	now := time.Now()
	fresh := make([]content.Item, 0, len(items))
	for _, item := range items {
		if s.dedupe.IsDuplicate(ctx, item) {
			s.metrics.items("duplicate", 1)
			continue
		}
		fresh = append(fresh, item)
	}
	s.metrics.items("collected", len(items))
	s.metrics.items("fresh", len(fresh))

	s.batcher.Add(fresh, now)

	ready := s.batcher.ReadyBatches(now)
	for _, tier := range triage.AllTiers {
		if batch := ready[tier]; len(batch) > 0 {
			s.processBatch(ctx, tier, batch, now)
		}
	}

	s.publishFindings(ctx, now)

	s.mu.Lock()
	s.cycles++
	s.totalItems += uint64(len(items))
	s.lastCycle = now
	s.mu.Unlock()

	s.metrics.cycle("ok", time.Since(started))
	s.logger.WithFields(logging.Fields{
		"collected": len(items),
		"fresh":     len(fresh),
		"flushed":   len(ready),
	}).Info("Scan cycle complete")
	return len(items), nil
}

// collect fans out to every collector and merges their results. A failing
// collector is logged and skipped; the cycle only fails when every source
// failed and nothing came back.
func (s *Scanner) collect(ctx context.Context) ([]content.Item, error) {
	var (
		mu    sync.Mutex
		items []content.Item
		errs  []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelCollectors)
	for _, c := range s.collectors {
		g.Go(func() error {
			collected, err := c.Scan(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.WithFields(logging.Fields{
					"collector": c.Name(),
					"error":     err,
				}).Warn("Collector scan failed")
				errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
				return nil
			}
			items = append(items, collected...)
			return nil
		})
	}
	_ = g.Wait()

	if len(items) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

// processBatch handles one flushed tier batch: a single batch synthesis used
// as shared context, then per-item summarization, persistence, and event
// publication. The batch also lands in the insight aggregator keyed by tier
// with the item kinds as subtopics.
func (s *Scanner) processBatch(ctx context.Context, tier triage.Tier, batch []content.Item, now time.Time) {
	synthesis := s.synthesizeBatch(ctx, tier, batch)

	kindSet := make(map[string]bool)
	for _, item := range batch {
		kindSet[string(item.Kind)] = true
		score := s.scorer.Score(item, now)

		var summary string
		if score.ShouldProcess {
			summary = s.summarizeItem(ctx, item, synthesis)
		}

		s.store.StoreItem(ctx, item, score, tier)
		s.recordDetection(ctx, item)

		event := publish.ItemProcessedEvent{
			ItemID:    item.ID,
			Platform:  item.Platform,
			Author:    item.Author,
			Kind:      item.Kind,
			Tier:      tier,
			Score:     score,
			Body:      item.Body,
			Summary:   summary,
			Timestamp: now,
		}
		if err := s.publisher.PublishItemProcessed(ctx, event); err != nil {
			s.logger.WithFields(logging.Fields{
				"item_id": item.ID,
				"error":   err,
			}).Warn("Failed to publish item event")
		}
		s.metrics.items("processed", 1)
	}

	kinds := make([]string, 0, len(kindSet))
	for kind := range kindSet {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	s.aggregator.AddInsight(string(tier), map[string]any{
		"summary":   synthesis,
		"subtopics": kinds,
		"items":     len(batch),
	}, now)
	s.store.LogAction(ctx, "scanner", "process_batch", fmt.Sprintf("tier=%s items=%d", tier, len(batch)), "ok")
}

// synthesizeBatch condenses a flushed batch into shared context for the
// per-item summaries. Failure degrades to empty context.
func (s *Scanner) synthesizeBatch(ctx context.Context, tier triage.Tier, batch []content.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch of %d %s tier items:\n", len(batch), tier)
	for _, item := range batch {
		note := item.Body
		if len(note) > batchNoteLimit {
			note = note[:batchNoteLimit]
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", item.Platform, item.Author, note)
	}

	synthesis, err := s.summarizer.Summarize(ctx, b.String(), "")
	if err != nil {
		s.logger.WithFields(logging.Fields{
			"tier":  string(tier),
			"error": err,
		}).Warn("Batch synthesis failed")
		return ""
	}
	return synthesis
}

func (s *Scanner) summarizeItem(ctx context.Context, item content.Item, synthesis string) string {
	summary, err := s.summarizer.Summarize(ctx, item.Body, synthesis)
	if err != nil {
		s.logger.WithFields(logging.Fields{
			"item_id": item.ID,
			"error":   err,
		}).Warn("Item summarization failed")
		return ""
	}
	return summary
}

// recordDetection persists the entity behind typed detection items.
func (s *Scanner) recordDetection(ctx context.Context, item content.Item) {
	switch item.Kind {
	case content.KindKeywordAlert:
		if kw, ok := item.Metadata["keyword"].(string); ok {
			s.store.StoreDetection(ctx, "watch_keyword", kw, item.Metadata)
		}
	case content.KindContractDetection:
		if addr, ok := item.Metadata["contract_address"].(string); ok {
			s.store.StoreDetection(ctx, "contract_address", addr, item.Metadata)
		}
	}
}

// publishFindings runs the interval-gated aggregation pass and fans the
// extracted signals out to the sink and Kafka.
func (s *Scanner) publishFindings(ctx context.Context, now time.Time) {
	summaries := s.aggregator.Aggregate(ctx, s.summarizer, now)
	if len(summaries) == 0 {
		return
	}

	opportunities, risks := s.aggregator.ExtractFindings(summaries)
	for _, sig := range opportunities {
		s.store.StoreFinding(ctx, sig, summaries[sig.Topic].Summary)
	}
	for _, sig := range risks {
		s.store.StoreFinding(ctx, sig, summaries[sig.Topic].Summary)
	}

	event := publish.FindingsEvent{
		Opportunities: opportunities,
		Risks:         risks,
		Summaries:     summaries,
		Timestamp:     now,
	}
	if err := s.publisher.PublishFindings(ctx, event); err != nil {
		s.logger.WithField("error", err).Warn("Failed to publish findings")
	}
	s.metrics.findings(len(opportunities), len(risks))
}

// pace applies the adaptive interval rules and returns how long to sleep
// before the next cycle. A failed cycle sleeps the full ceiling without
// touching the stored interval.
func (s *Scanner) pace(count int, err error) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.logger.WithField("error", err).Error("Scan cycle failed, backing off")
		return s.cfg.MaxInterval
	}

	switch {
	case count > s.cfg.ActivityThreshold:
		s.interval = time.Duration(float64(s.interval) * shrinkFactor)
		if s.interval < s.cfg.MinInterval {
			s.interval = s.cfg.MinInterval
		}
	case count == 0:
		s.interval = time.Duration(float64(s.interval) * growFactor)
		if s.interval > s.cfg.MaxInterval {
			s.interval = s.cfg.MaxInterval
		}
	}
	s.metrics.setInterval(s.interval)
	return s.interval
}

// Stats snapshots loop pacing for the status endpoint.
func (s *Scanner) Stats() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Interval:          s.interval.String(),
		MinInterval:       s.cfg.MinInterval.String(),
		MaxInterval:       s.cfg.MaxInterval.String(),
		ActivityThreshold: s.cfg.ActivityThreshold,
		Cycles:            s.cycles,
		TotalItems:        s.totalItems,
		LastCycle:         s.lastCycle,
	}
}
