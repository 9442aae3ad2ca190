package egress

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"frameworks/crowsnest/pkg/logging"
)

// Identity is a network egress descriptor plus client signature used to
// spread repeated upstream calls across distinct request fingerprints.
type Identity struct {
	Name      string
	UserAgent string
	Token     string
	ProxyURL  string
}

// Rotator tracks which identities are currently viable. An identity is
// untested until a caller reports an outcome, then working or failed. When
// every identity has failed the failed set is cleared so all of them can be
// retried; nothing is ever permanently blacklisted.
type Rotator struct {
	mu      sync.Mutex
	pool    []Identity
	known   map[string]bool
	working map[string]bool
	failed  map[string]bool
	logger  logging.Logger
	metrics *Metrics
}

// RotatorStats is a point-in-time snapshot of pool health.
type RotatorStats struct {
	Pool    int `json:"pool"`
	Working int `json:"working"`
	Failed  int `json:"failed"`
}

// NewRotator builds a rotator over the given pool. Identity names key the
// health sets and must be unique and non-empty.
func NewRotator(pool []Identity, logger logging.Logger, metrics *Metrics) (*Rotator, error) {
	if len(pool) == 0 {
		return nil, errors.New("egress: identity pool is empty")
	}

	known := make(map[string]bool, len(pool))
	for _, id := range pool {
		if id.Name == "" {
			return nil, errors.New("egress: identity with empty name")
		}
		if known[id.Name] {
			return nil, fmt.Errorf("egress: duplicate identity %q", id.Name)
		}
		known[id.Name] = true
	}

	r := &Rotator{
		pool:    append([]Identity(nil), pool...),
		known:   known,
		working: make(map[string]bool, len(pool)),
		failed:  make(map[string]bool, len(pool)),
		logger:  logger,
		metrics: metrics,
	}
	r.publishLocked()
	return r, nil
}

// Acquire selects an identity, preferring ones that recently worked, then
// untested ones. If every identity has failed, the failed set is cleared and
// selection starts over from the full pool.
func (r *Rotator) Acquire() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := r.selectLocked(func(name string) bool { return r.working[name] })
	if len(candidates) == 0 {
		candidates = r.selectLocked(func(name string) bool { return !r.failed[name] })
	}
	if len(candidates) == 0 {
		r.failed = make(map[string]bool, len(r.pool))
		r.logger.WithField("pool_size", len(r.pool)).Warn("All identities failed, resetting pool")
		r.metrics.identityReset()
		r.publishLocked()
		candidates = r.pool
	}
	return candidates[rand.IntN(len(candidates))]
}

// ReportSuccess moves the identity into the working set.
func (r *Rotator) ReportSuccess(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.known[id.Name] {
		return
	}
	r.working[id.Name] = true
	delete(r.failed, id.Name)
	r.publishLocked()
}

// ReportFailure moves the identity into the failed set.
func (r *Rotator) ReportFailure(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.known[id.Name] {
		return
	}
	delete(r.working, id.Name)
	r.failed[id.Name] = true
	r.publishLocked()
}

// Stats reports current pool health.
func (r *Rotator) Stats() RotatorStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RotatorStats{
		Pool:    len(r.pool),
		Working: len(r.working),
		Failed:  len(r.failed),
	}
}

func (r *Rotator) selectLocked(match func(name string) bool) []Identity {
	var out []Identity
	for _, id := range r.pool {
		if match(id.Name) {
			out = append(out, id)
		}
	}
	return out
}

func (r *Rotator) publishLocked() {
	untested := len(r.pool) - len(r.working) - len(r.failed)
	r.metrics.identityStates(len(r.working), len(r.failed), untested)
}
