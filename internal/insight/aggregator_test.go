package insight

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/crowsnest/pkg/logging"
)

func testLogger() logging.Logger {
	logger := logging.NewLogger()
	logger.SetOutput(io.Discard)
	return logger
}

type stubSummarizer struct {
	reply  string
	failOn string
	inputs []string
}

func (s *stubSummarizer) Summarize(ctx context.Context, text, extra string) (string, error) {
	s.inputs = append(s.inputs, text)
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return "", errors.New("summarizer unavailable")
	}
	return s.reply, nil
}

func (s *stubSummarizer) Name() string { return "stub" }

func TestAggregateGatedByInterval(t *testing.T) {
	ctx := context.Background()
	agg := NewAggregator(time.Hour, 24*time.Hour, testLogger())
	now := time.Now()
	sum := &stubSummarizer{reply: "condensed"}

	agg.AddInsight("urgent", map[string]any{"summary": "note"}, now)

	// The gate is armed at construction, so nothing runs inside the first
	// interval.
	assert.Nil(t, agg.Aggregate(ctx, sum, now))

	first := agg.Aggregate(ctx, sum, now.Add(3601*time.Second))
	require.NotNil(t, first)
	require.Contains(t, first, "urgent")
	assert.Equal(t, "condensed", first["urgent"].Summary)

	// The gate re-arms after each run.
	assert.Nil(t, agg.Aggregate(ctx, sum, now.Add(3601*time.Second).Add(30*time.Minute)))

	second := agg.Aggregate(ctx, sum, now.Add(3601*time.Second).Add(3601*time.Second))
	require.NotNil(t, second)
	assert.Contains(t, second, "urgent")
}

func TestInsightExpiryWindow(t *testing.T) {
	ctx := context.Background()
	sum := &stubSummarizer{reply: "fine"}
	t0 := time.Now()

	fresh := NewAggregator(time.Hour, 24*time.Hour, testLogger())
	fresh.AddInsight("alpha", map[string]any{}, t0)
	got := fresh.Aggregate(ctx, sum, t0.Add(86399*time.Second))
	require.Contains(t, got, "alpha")
	assert.Equal(t, 1, got["alpha"].Records)

	expired := NewAggregator(time.Hour, 24*time.Hour, testLogger())
	expired.AddInsight("alpha", map[string]any{}, t0)
	got = expired.Aggregate(ctx, sum, t0.Add(86401*time.Second))
	assert.NotContains(t, got, "alpha")
	assert.Empty(t, got)
}

func TestPerTopicFailureIsolated(t *testing.T) {
	ctx := context.Background()
	agg := NewAggregator(time.Hour, 24*time.Hour, testLogger())
	now := time.Now()

	agg.AddInsight("steady", map[string]any{"summary": "calm waters"}, now)
	agg.AddInsight("flaky", map[string]any{"summary": "whatever"}, now)

	sum := &stubSummarizer{reply: "ok", failOn: "Topic flaky"}
	got := agg.Aggregate(ctx, sum, now.Add(2*time.Hour))

	require.NotNil(t, got)
	assert.Contains(t, got, "steady")
	assert.NotContains(t, got, "flaky")
}

func TestSubtopicGrouping(t *testing.T) {
	ctx := context.Background()
	agg := NewAggregator(time.Hour, 24*time.Hour, testLogger())
	now := time.Now()
	sum := &stubSummarizer{reply: "condensed"}

	agg.AddInsight("urgent", map[string]any{"subtopics": []string{"post"}, "summary": "first batch"}, now)
	agg.AddInsight("urgent", map[string]any{"subtopics": []any{"post", "keyword_alert"}}, now)

	got := agg.Aggregate(ctx, sum, now.Add(2*time.Hour))

	require.Contains(t, got, "urgent")
	assert.Equal(t, 2, got["urgent"].Records)
	assert.Equal(t, []string{"keyword_alert", "post"}, got["urgent"].Subtopics)

	require.Len(t, sum.inputs, 1)
	assert.Contains(t, sum.inputs[0], "Subtopic post: 2 records")
	assert.Contains(t, sum.inputs[0], "first batch")
}

func TestExtractFindings(t *testing.T) {
	agg := NewAggregator(0, 0, testLogger())
	summaries := map[string]TopicSummary{
		"alpha": {Topic: "alpha", Summary: "Strong growth potential but volatile conditions ahead"},
		"beta":  {Topic: "beta", Summary: "Bullish momentum is growing"},
		"gamma": {Topic: "gamma", Summary: "nothing to see here"},
	}

	opportunities, risks := agg.ExtractFindings(summaries)

	require.Len(t, opportunities, 3)
	assert.Equal(t, Signal{Topic: "alpha", Indicator: "potential", Kind: SignalOpportunity}, opportunities[0])
	assert.Equal(t, Signal{Topic: "beta", Indicator: "growing", Kind: SignalOpportunity}, opportunities[1])
	assert.Equal(t, Signal{Topic: "beta", Indicator: "bullish", Kind: SignalOpportunity}, opportunities[2])

	require.Len(t, risks, 1)
	assert.Equal(t, Signal{Topic: "alpha", Indicator: "volatile", Kind: SignalRisk}, risks[0])
}

func TestStatsCountsPendingRecords(t *testing.T) {
	agg := NewAggregator(time.Hour, 24*time.Hour, testLogger())
	now := time.Now()

	agg.AddInsight("a", nil, now)
	agg.AddInsight("a", nil, now)
	agg.AddInsight("b", nil, now)

	assert.Equal(t, map[string]int{"a": 2, "b": 1}, agg.Stats())
}
