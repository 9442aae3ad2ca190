package triage

import (
	"sort"
	"sync"
	"time"

	"frameworks/crowsnest/internal/content"
	"frameworks/crowsnest/pkg/logging"
)

// Tier is one of the four priority buckets governing flush cadence.
type Tier string

const (
	TierUrgent Tier = "urgent"
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// AllTiers lists tiers in descending priority order.
var AllTiers = []Tier{TierUrgent, TierHigh, TierMedium, TierLow}

// FlushInterval is the minimum time between flushes of this tier. Urgent is
// an immediate-dispatch lane.
func (t Tier) FlushInterval() time.Duration {
	switch t {
	case TierUrgent:
		return 0
	case TierHigh:
		return 300 * time.Second
	case TierMedium:
		return 600 * time.Second
	default:
		return 900 * time.Second
	}
}

// tierFor routes a combined score to its tier. Thresholds are inclusive and
// the highest satisfied threshold wins.
func tierFor(combined float64) Tier {
	switch {
	case combined >= 8:
		return TierUrgent
	case combined >= 6:
		return TierHigh
	case combined >= 4:
		return TierMedium
	default:
		return TierLow
	}
}

type scoredItem struct {
	item  content.Item
	score ScoreResult
}

type tierState struct {
	items       []scoredItem
	lastFlushed time.Time
}

// TierStats is a point-in-time view of one tier's queue.
type TierStats struct {
	Queued      int       `json:"queued"`
	LastFlushed time.Time `json:"last_flushed,omitempty"`
}

// Batcher scores incoming items and holds them in priority tiers until each
// tier's flush interval elapses. Slow consumers are paced at tier cadence
// instead of being hit per item.
type Batcher struct {
	mu     sync.Mutex
	scorer *Scorer
	tiers  map[Tier]*tierState
	logger logging.Logger
}

// NewBatcher builds a batcher that scores items with the given scorer. Tier
// cadence starts at construction, so a non-urgent tier's first flush waits
// out its full interval.
func NewBatcher(scorer *Scorer, logger logging.Logger) *Batcher {
	now := time.Now()
	tiers := make(map[Tier]*tierState, len(AllTiers))
	for _, t := range AllTiers {
		tiers[t] = &tierState{lastFlushed: now}
	}
	return &Batcher{
		scorer: scorer,
		tiers:  tiers,
		logger: logger,
	}
}

// Add scores each item at the given time and appends it to its tier.
func (b *Batcher) Add(items []content.Item, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, item := range items {
		result := b.scorer.Score(item, now)
		tier := tierFor(result.Combined)
		b.tiers[tier].items = append(b.tiers[tier].items, scoredItem{item: item, score: result})

		b.logger.WithFields(logging.Fields{
			"item_id":  item.ID,
			"platform": item.Platform,
			"combined": result.Combined,
			"tier":     string(tier),
		}).Debug("Item batched")
	}
}

// ReadyBatches drains every tier that is due at the given time. A tier is
// due when its interval has elapsed since the last flush and it is
// non-empty. Emitted items are sorted by combined score descending. Tiers
// that are not due keep their contents untouched; there is no partial or
// forced flush.
func (b *Batcher) ReadyBatches(now time.Time) map[Tier][]content.Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	ready := make(map[Tier][]content.Item)
	for _, tier := range AllTiers {
		state := b.tiers[tier]
		if len(state.items) == 0 {
			continue
		}
		if now.Sub(state.lastFlushed) < tier.FlushInterval() {
			continue
		}

		sort.SliceStable(state.items, func(i, j int) bool {
			return state.items[i].score.Combined > state.items[j].score.Combined
		})
		batch := make([]content.Item, len(state.items))
		for i, si := range state.items {
			batch[i] = si.item
		}
		ready[tier] = batch
		state.items = nil
		state.lastFlushed = now
	}
	return ready
}

// Stats reports queued counts and last flush times per tier.
func (b *Batcher) Stats() map[Tier]TierStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := make(map[Tier]TierStats, len(b.tiers))
	for tier, state := range b.tiers {
		stats[tier] = TierStats{
			Queued:      len(state.items),
			LastFlushed: state.lastFlushed,
		}
	}
	return stats
}
