package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"frameworks/crowsnest/internal/content"
	"frameworks/crowsnest/internal/insight"
	"frameworks/crowsnest/internal/triage"
	"frameworks/crowsnest/pkg/logging"
)

// Store is the relational sink. It is a log and lookup surface only; every
// write is fire-and-forget from the pipeline's perspective, so failures are
// logged and never retried. A nil *Store is valid and drops every write, so
// the pipeline never branches on whether Postgres is configured.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

const schema = `
CREATE TABLE IF NOT EXISTS crowsnest_items (
	id            BIGSERIAL PRIMARY KEY,
	platform      TEXT NOT NULL,
	platform_id   TEXT NOT NULL,
	author        TEXT NOT NULL DEFAULT '',
	kind          TEXT NOT NULL,
	body          TEXT NOT NULL DEFAULT '',
	tier          TEXT NOT NULL DEFAULT '',
	combined      DOUBLE PRECISION NOT NULL DEFAULT 0,
	should_process BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ,
	collected_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS crowsnest_detections (
	id          BIGSERIAL PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity      TEXT NOT NULL,
	metadata    JSONB,
	detected_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS crowsnest_actions (
	id        BIGSERIAL PRIMARY KEY,
	component TEXT NOT NULL,
	action    TEXT NOT NULL,
	details   TEXT NOT NULL DEFAULT '',
	status    TEXT NOT NULL,
	logged_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS crowsnest_findings (
	id           BIGSERIAL PRIMARY KEY,
	topic        TEXT NOT NULL,
	indicator    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	extracted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the sink tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// StoreItem records a processed item with its score and tier.
func (s *Store) StoreItem(ctx context.Context, item content.Item, score triage.ScoreResult, tier triage.Tier) {
	if s == nil || s.db == nil {
		return
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crowsnest_items (platform, platform_id, author, kind, body, tier, combined, should_process, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.Platform, item.ID, item.Author, string(item.Kind), item.Body,
		string(tier), score.Combined, score.ShouldProcess, nullableTime(item.CreatedAt),
	)
	if err != nil {
		s.logger.WithFields(logging.Fields{
			"item_id": item.ID,
			"error":   err,
		}).Warn("Failed to store item")
	}
}

// StoreDetection records a detected entity such as a watch keyword hit or a
// contract address sighting.
func (s *Store) StoreDetection(ctx context.Context, entityType, entity string, metadata map[string]any) {
	if s == nil || s.db == nil {
		return
	}
	var meta any
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			s.logger.WithField("error", err).Warn("Failed to encode detection metadata")
		} else {
			meta = string(raw)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crowsnest_detections (entity_type, entity, metadata) VALUES ($1, $2, $3)`,
		entityType, entity, meta,
	)
	if err != nil {
		s.logger.WithFields(logging.Fields{
			"entity_type": entityType,
			"error":       err,
		}).Warn("Failed to store detection")
	}
}

// LogAction appends one component action to the audit log.
func (s *Store) LogAction(ctx context.Context, component, action, details, status string) {
	if s == nil || s.db == nil {
		return
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crowsnest_actions (component, action, details, status) VALUES ($1, $2, $3, $4)`,
		component, action, details, status,
	)
	if err != nil {
		s.logger.WithFields(logging.Fields{
			"component": component,
			"action":    action,
			"error":     err,
		}).Warn("Failed to log action")
	}
}

// StoreFinding records one extracted opportunity or risk signal alongside
// the topic summary it came from.
func (s *Store) StoreFinding(ctx context.Context, signal insight.Signal, summary string) {
	if s == nil || s.db == nil {
		return
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crowsnest_findings (topic, indicator, kind, summary) VALUES ($1, $2, $3, $4)`,
		signal.Topic, signal.Indicator, string(signal.Kind), summary,
	)
	if err != nil {
		s.logger.WithFields(logging.Fields{
			"topic": signal.Topic,
			"error": err,
		}).Warn("Failed to store finding")
	}
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
