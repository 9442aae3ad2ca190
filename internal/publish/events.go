package publish

import (
	"time"

	"frameworks/crowsnest/internal/content"
	"frameworks/crowsnest/internal/insight"
	"frameworks/crowsnest/internal/triage"
)

// Kafka topics owned by this service.
const (
	TopicProcessedItems = "crowsnest.processed_items"
	TopicFindings       = "crowsnest.findings"
)

// SchemaVersion is stamped into every event body so consumers can handle
// format changes.
const SchemaVersion = "1.0"

// ItemProcessedEvent is emitted once per item that made it through scoring
// and batch processing.
type ItemProcessedEvent struct {
	ItemID        string             `json:"item_id"`
	Platform      string             `json:"platform"`
	Author        string             `json:"author"`
	Kind          content.Kind       `json:"kind"`
	Tier          triage.Tier        `json:"tier"`
	Score         triage.ScoreResult `json:"score"`
	Body          string             `json:"body"`
	Summary       string             `json:"summary,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
	SchemaVersion string             `json:"schema_version"`
}

// FindingsEvent carries one aggregation round's summaries and the signals
// extracted from them.
type FindingsEvent struct {
	Opportunities []insight.Signal                `json:"opportunities"`
	Risks         []insight.Signal                `json:"risks"`
	Summaries     map[string]insight.TopicSummary `json:"summaries"`
	Timestamp     time.Time                       `json:"timestamp"`
	SchemaVersion string                          `json:"schema_version"`
}
