package insight

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"frameworks/crowsnest/pkg/llm"
	"frameworks/crowsnest/pkg/logging"
)

const (
	defaultAggregationInterval = time.Hour
	defaultMemoryWindow        = 24 * time.Hour
)

// Indicator keyword sets applied against topic summaries.
var (
	opportunityIndicators = []string{"potential", "opportunity", "growing", "bullish", "undervalued"}
	riskIndicators        = []string{"risk", "warning", "bearish", "concern", "volatile"}
)

// Record is one timestamped, topic-tagged insight entry.
type Record struct {
	Topic     string
	Timestamp time.Time
	Payload   map[string]any
}

// TopicSummary is the condensed view of one topic's recent records.
type TopicSummary struct {
	Topic     string    `json:"topic"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
	Records   int       `json:"records"`
	Subtopics []string  `json:"subtopics,omitempty"`
}

// SignalKind tags an extracted finding as upside or downside.
type SignalKind string

const (
	SignalOpportunity SignalKind = "opportunity"
	SignalRisk        SignalKind = "risk"
)

// Signal is one indicator hit inside a topic summary.
type Signal struct {
	Topic     string     `json:"topic"`
	Indicator string     `json:"indicator"`
	Kind      SignalKind `json:"kind"`
}

// Aggregator accumulates per-topic insight records and periodically condenses
// them through the external summarizer. Records age out of the memory window
// at aggregation time; aggregation itself runs at most once per interval,
// with the gate armed at construction.
type Aggregator struct {
	mu             sync.Mutex
	records        map[string][]Record
	interval       time.Duration
	window         time.Duration
	lastAggregated time.Time
	logger         logging.Logger
}

// NewAggregator builds an aggregator. Zero or negative durations select the
// one hour interval and 24h window defaults.
func NewAggregator(interval, window time.Duration, logger logging.Logger) *Aggregator {
	if interval <= 0 {
		interval = defaultAggregationInterval
	}
	if window <= 0 {
		window = defaultMemoryWindow
	}
	return &Aggregator{
		records:        make(map[string][]Record),
		interval:       interval,
		window:         window,
		lastAggregated: time.Now(),
		logger:         logger,
	}
}

// AddInsight appends a timestamped record to the topic's list.
func (a *Aggregator) AddInsight(topic string, payload map[string]any, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[topic] = append(a.records[topic], Record{Topic: topic, Timestamp: now, Payload: payload})
}

// Aggregate condenses every topic's surviving records into a summary. It
// returns nil without doing any work until the aggregation interval has
// elapsed since the previous run. A topic whose summarization fails is
// skipped; the others still aggregate.
func (a *Aggregator) Aggregate(ctx context.Context, summarizer llm.Summarizer, now time.Time) map[string]TopicSummary {
	a.mu.Lock()
	if now.Sub(a.lastAggregated) < a.interval {
		a.mu.Unlock()
		return nil
	}
	a.lastAggregated = now
	a.expireLocked(now)

	topics := make(map[string][]Record, len(a.records))
	for topic, recs := range a.records {
		topics[topic] = append([]Record(nil), recs...)
	}
	a.mu.Unlock()

	summaries := make(map[string]TopicSummary, len(topics))
	for _, topic := range sortedTopicNames(topics) {
		recs := topics[topic]
		text, subtopics := topicText(topic, recs)

		summary, err := summarizer.Summarize(ctx, text, "")
		if err != nil {
			a.logger.WithFields(logging.Fields{
				"topic": topic,
				"error": err,
			}).Warn("Topic summarization failed, skipping")
			continue
		}

		summaries[topic] = TopicSummary{
			Topic:     topic,
			Summary:   summary,
			Timestamp: now,
			Records:   len(recs),
			Subtopics: subtopics,
		}
	}

	a.logger.WithFields(logging.Fields{
		"topics":  len(topics),
		"summary": len(summaries),
	}).Info("Insight aggregation complete")
	return summaries
}

// ExtractFindings applies the indicator keyword sets to each topic summary.
// A topic contributes one signal per matched indicator, so a single summary
// can yield several opportunities and risks at once.
func (a *Aggregator) ExtractFindings(summaries map[string]TopicSummary) (opportunities, risks []Signal) {
	names := make([]string, 0, len(summaries))
	for topic := range summaries {
		names = append(names, topic)
	}
	sort.Strings(names)

	for _, topic := range names {
		lower := strings.ToLower(summaries[topic].Summary)
		for _, ind := range opportunityIndicators {
			if strings.Contains(lower, ind) {
				opportunities = append(opportunities, Signal{Topic: topic, Indicator: ind, Kind: SignalOpportunity})
			}
		}
		for _, ind := range riskIndicators {
			if strings.Contains(lower, ind) {
				risks = append(risks, Signal{Topic: topic, Indicator: ind, Kind: SignalRisk})
			}
		}
	}
	return opportunities, risks
}

// Stats reports pending record counts per topic.
func (a *Aggregator) Stats() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := make(map[string]int, len(a.records))
	for topic, recs := range a.records {
		stats[topic] = len(recs)
	}
	return stats
}

// expireLocked drops records older than the memory window.
func (a *Aggregator) expireLocked(now time.Time) {
	for topic, recs := range a.records {
		kept := recs[:0]
		for _, rec := range recs {
			if now.Sub(rec.Timestamp) > a.window {
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(a.records, topic)
			continue
		}
		a.records[topic] = kept
	}
}

// topicText renders one topic's records into the summarizer input and
// returns the distinct subtopics seen.
func topicText(topic string, recs []Record) (string, []string) {
	counts := make(map[string]int)
	var notes []string
	for _, rec := range recs {
		for _, st := range subtopicsOf(rec.Payload) {
			counts[st]++
		}
		if note, ok := rec.Payload["summary"].(string); ok && note != "" {
			notes = append(notes, note)
		}
	}

	subtopics := make([]string, 0, len(counts))
	for st := range counts {
		subtopics = append(subtopics, st)
	}
	sort.Strings(subtopics)

	var b strings.Builder
	fmt.Fprintf(&b, "Topic %s with %d records in the retention window.\n", topic, len(recs))
	for _, st := range subtopics {
		fmt.Fprintf(&b, "Subtopic %s: %d records.\n", st, counts[st])
	}
	if len(notes) > 0 {
		b.WriteString("Batch notes:\n")
		for _, note := range notes {
			b.WriteString("- " + note + "\n")
		}
	}
	return b.String(), subtopics
}

// subtopicsOf reads the subtopic tags out of an opaque payload.
func subtopicsOf(payload map[string]any) []string {
	switch v := payload["subtopics"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func sortedTopicNames(topics map[string][]Record) []string {
	names := make([]string, 0, len(topics))
	for topic := range topics {
		names = append(names, topic)
	}
	sort.Strings(names)
	return names
}
