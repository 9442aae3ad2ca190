package collectors

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"frameworks/crowsnest/internal/content"
)

// Collector fetches newly observed items from one upstream source. Scan is
// invoked once per cycle; implementations track platform-native IDs across
// calls and return only items not seen before.
type Collector interface {
	Name() string
	Scan(ctx context.Context) ([]content.Item, error)
}

var contractAddressPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)

// Detector turns watch-keyword and contract-address sightings inside source
// items into typed signal items. Detection bodies are indicator-prefixed so
// they never collide with their source item at the dedup boundary.
type Detector struct {
	keywords []string
}

// NewDetector builds a detector for the given watch keywords.
func NewDetector(keywords []string) *Detector {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Detector{keywords: lowered}
}

// Detect scans one source item and returns the typed items it triggers.
func (d *Detector) Detect(source content.Item) []content.Item {
	var out []content.Item
	lower := strings.ToLower(source.Body)

	for _, kw := range d.keywords {
		if !strings.Contains(lower, kw) {
			continue
		}
		out = append(out, content.Item{
			ID:        source.ID + ":kw:" + kw,
			Platform:  source.Platform,
			Author:    source.Author,
			Body:      "Watch keyword " + kw + " spotted: " + source.Body,
			Kind:      content.KindKeywordAlert,
			Metrics:   source.Metrics,
			CreatedAt: source.CreatedAt,
			Metadata: map[string]any{
				"keyword":   kw,
				"source_id": source.ID,
			},
		})
	}

	seen := map[string]bool{}
	for _, addr := range contractAddressPattern.FindAllString(source.Body, -1) {
		key := strings.ToLower(addr)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, content.Item{
			ID:        source.ID + ":contract:" + key,
			Platform:  source.Platform,
			Author:    source.Author,
			Body:      "Contract address " + addr + " spotted: " + source.Body,
			Kind:      content.KindContractDetection,
			Metrics:   source.Metrics,
			CreatedAt: source.CreatedAt,
			Metadata: map[string]any{
				"contract_address": addr,
				"source_id":        source.ID,
			},
		})
	}
	return out
}

// seenSet remembers platform-native IDs across scans, bounded by evicting
// the oldest entries.
type seenSet struct {
	mu    sync.Mutex
	ids   map[string]bool
	order []string
	limit int
}

func newSeenSet(limit int) *seenSet {
	if limit <= 0 {
		limit = 10000
	}
	return &seenSet{
		ids:   make(map[string]bool, limit),
		limit: limit,
	}
}

// Observe records the id and reports whether it was already present.
func (s *seenSet) Observe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids[id] {
		return true
	}
	s.ids[id] = true
	s.order = append(s.order, id)
	if len(s.order) > s.limit {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
	return false
}
