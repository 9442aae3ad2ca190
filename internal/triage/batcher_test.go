package triage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/crowsnest/internal/content"
)

// Combined 8.1: engagement 5, relevance 9, credibility 10.
func urgentItem(now time.Time) content.Item {
	return content.Item{
		ID:        "urgent-1",
		Platform:  content.PlatformReddit,
		Author:    "good",
		Body:      "launch of web3 token at " + testContract,
		Metrics:   content.RedditMetrics{Score: 100000, Comments: 100000, UpvoteRatio: 1, AuthorKarma: 6000},
		CreatedAt: now,
	}
}

// Combined 7.2: engagement 3, relevance 9, credibility 9.
func highItem(now time.Time) content.Item {
	return content.Item{
		ID:        "high-1",
		Platform:  content.PlatformReddit,
		Author:    "good",
		Body:      "protocol update for the defi token at " + testContract,
		Metrics:   content.RedditMetrics{Score: 100, Comments: 50, UpvoteRatio: 1.0, AuthorKarma: 4000},
		CreatedAt: now,
	}
}

// Combined 0: no engagement, no keywords, unknown author.
func lowItem(now time.Time) content.Item {
	return content.Item{
		ID:        "low-1",
		Platform:  content.PlatformRSS,
		Author:    "nobody",
		Body:      "went for a walk in the park",
		CreatedAt: now,
	}
}

func TestTierAssignment(t *testing.T) {
	assert.Equal(t, TierUrgent, tierFor(8.5))
	assert.Equal(t, TierUrgent, tierFor(8.0))
	assert.Equal(t, TierHigh, tierFor(7.9))
	assert.Equal(t, TierHigh, tierFor(6.0))
	assert.Equal(t, TierMedium, tierFor(4.0))
	assert.Equal(t, TierLow, tierFor(3.9))
	assert.Equal(t, TierLow, tierFor(0))
}

func TestFlushIntervals(t *testing.T) {
	assert.Equal(t, time.Duration(0), TierUrgent.FlushInterval())
	assert.Equal(t, 300*time.Second, TierHigh.FlushInterval())
	assert.Equal(t, 600*time.Second, TierMedium.FlushInterval())
	assert.Equal(t, 900*time.Second, TierLow.FlushInterval())
}

func TestUrgentDispatchesImmediately(t *testing.T) {
	d := NewDeduplicator(0, nil, testLogger())
	b := NewBatcher(newTestScorer(), testLogger())
	now := time.Now()

	var fresh []content.Item
	for _, item := range []content.Item{urgentItem(now), highItem(now), lowItem(now)} {
		if !d.IsDuplicate(context.Background(), item) {
			fresh = append(fresh, item)
		}
	}
	require.Len(t, fresh, 3)

	b.Add(fresh, now)
	ready := b.ReadyBatches(now)

	// Only the urgent lane flushes on the spot; the rest stay queued until
	// their intervals elapse.
	require.Len(t, ready, 1)
	require.Len(t, ready[TierUrgent], 1)
	assert.Equal(t, "urgent-1", ready[TierUrgent][0].ID)

	stats := b.Stats()
	assert.Equal(t, 1, stats[TierHigh].Queued)
	assert.Equal(t, 1, stats[TierLow].Queued)
}

func TestTierFlushesAfterInterval(t *testing.T) {
	b := NewBatcher(newTestScorer(), testLogger())
	now := time.Now()

	b.Add([]content.Item{highItem(now)}, now)
	assert.Empty(t, b.ReadyBatches(now))

	ready := b.ReadyBatches(now.Add(301 * time.Second))
	require.Len(t, ready[TierHigh], 1)
	assert.Equal(t, "high-1", ready[TierHigh][0].ID)
}

func TestNoDoubleFlushWithinInterval(t *testing.T) {
	b := NewBatcher(newTestScorer(), testLogger())
	now := time.Now()
	due := now.Add(301 * time.Second)

	b.Add([]content.Item{highItem(now)}, now)
	first := b.ReadyBatches(due)
	require.Len(t, first[TierHigh], 1)

	second := highItem(due)
	second.ID = "high-2"
	b.Add([]content.Item{second}, due)

	again := b.ReadyBatches(due)
	assert.NotContains(t, again, TierHigh)

	later := b.ReadyBatches(due.Add(301 * time.Second))
	require.Len(t, later[TierHigh], 1)
	assert.Equal(t, "high-2", later[TierHigh][0].ID)
}

func TestFlushSortsByScoreDescending(t *testing.T) {
	b := NewBatcher(newTestScorer(), testLogger())
	now := time.Now()

	// All medium tier: combined 5.7, 4.1, and 4.5 in insertion order.
	items := []content.Item{
		{ID: "m-57", Author: "good", Body: "launch of web3 token at " + testContract},
		{ID: "m-41", Author: "good", Body: "defi position at " + testContract},
		{ID: "m-45", Author: "good", Body: "protocol update for defi users"},
	}
	b.Add(items, now)

	ready := b.ReadyBatches(now.Add(601 * time.Second))
	require.Len(t, ready[TierMedium], 3)
	assert.Equal(t, "m-57", ready[TierMedium][0].ID)
	assert.Equal(t, "m-45", ready[TierMedium][1].ID)
	assert.Equal(t, "m-41", ready[TierMedium][2].ID)
}

func TestReadyBatchesSkipsEmptyTiers(t *testing.T) {
	b := NewBatcher(newTestScorer(), testLogger())
	assert.Empty(t, b.ReadyBatches(time.Now().Add(time.Hour)))
}
