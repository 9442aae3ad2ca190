package triage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"frameworks/crowsnest/internal/content"
	"frameworks/crowsnest/pkg/logging"
)

const (
	defaultDedupRetention = 24 * time.Hour
	dedupSweepInterval    = 15 * time.Minute
	dedupKeyPrefix        = "crowsnest:dedup:"
)

// Deduplicator rejects items whose content identity has already been seen.
// Identity is a digest of body, author, and platform, so reposts collide even
// when their platform-native IDs differ. Entries age out after the retention
// window. An optional Redis backing shares the seen set across restarts;
// when Redis is unavailable the local set alone decides.
type Deduplicator struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	lastSweep time.Time

	rdb    redis.UniversalClient
	logger logging.Logger
	nowFn  func() time.Time
}

// NewDeduplicator builds a deduplicator with the given retention window.
// Zero or negative retention selects the 24h default. rdb may be nil.
func NewDeduplicator(retention time.Duration, rdb redis.UniversalClient, logger logging.Logger) *Deduplicator {
	if retention <= 0 {
		retention = defaultDedupRetention
	}
	return &Deduplicator{
		seen:      make(map[string]time.Time),
		retention: retention,
		rdb:       rdb,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// Fingerprint computes the stable content identity digest for an item. The
// normalized fields are sorted before hashing so construction order never
// changes the result.
func Fingerprint(item content.Item) string {
	fields := []string{
		strings.ToLower(strings.TrimSpace(item.Body)),
		strings.ToLower(strings.TrimSpace(item.Author)),
		strings.ToLower(item.Platform),
	}
	sort.Strings(fields)
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x00")))
	return hex.EncodeToString(sum[:])
}

// IsDuplicate reports whether the item's content identity has been seen
// within the retention window, recording it on first sight.
func (d *Deduplicator) IsDuplicate(ctx context.Context, item content.Item) bool {
	fp := Fingerprint(item)
	now := d.nowFn()

	d.mu.Lock()
	if now.Sub(d.lastSweep) >= dedupSweepInterval {
		d.sweepLocked(now)
		d.lastSweep = now
	}
	if ts, ok := d.seen[fp]; ok && now.Sub(ts) <= d.retention {
		d.mu.Unlock()
		return true
	}
	d.seen[fp] = now
	d.mu.Unlock()

	if d.rdb != nil {
		fresh, err := d.rdb.SetNX(ctx, dedupKeyPrefix+fp, 1, d.retention).Result()
		if err != nil {
			d.logger.WithField("error", err).Debug("Dedup store unavailable, using local set only")
			return false
		}
		return !fresh
	}
	return false
}

// Size returns the number of fingerprints currently held locally.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Deduplicator) sweepLocked(now time.Time) {
	for fp, ts := range d.seen {
		if now.Sub(ts) > d.retention {
			delete(d.seen, fp)
		}
	}
}
