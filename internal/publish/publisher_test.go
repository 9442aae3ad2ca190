package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/crowsnest/internal/content"
	"frameworks/crowsnest/internal/insight"
	"frameworks/crowsnest/internal/triage"
	"frameworks/crowsnest/pkg/logging"
)

type produceCall struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

type fakeProducer struct {
	calls      []produceCall
	produceErr error
}

func (f *fakeProducer) ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	f.calls = append(f.calls, produceCall{topic: topic, key: key, value: value, headers: headers})
	return f.produceErr
}

func testLogger() logging.Logger {
	logger := logging.NewLogger()
	logger.SetOutput(io.Discard)
	return logger
}

func TestPublishItemProcessedEncodesEvent(t *testing.T) {
	fake := &fakeProducer{}
	pub := NewPublisher(fake, testLogger())

	event := ItemProcessedEvent{
		ItemID:    "r-1",
		Platform:  content.PlatformReddit,
		Author:    "satoshi",
		Kind:      content.KindPost,
		Tier:      triage.TierUrgent,
		Score:     triage.ScoreResult{Combined: 8.5, ShouldProcess: true},
		Body:      "protocol launch",
		Summary:   "a launch",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, pub.PublishItemProcessed(context.Background(), event))

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, TopicProcessedItems, call.topic)
	assert.Equal(t, []byte("r-1"), call.key)
	assert.Equal(t, "item_processed", call.headers["event_type"])
	assert.Equal(t, "crowsnest", call.headers["source"])
	assert.Equal(t, "reddit", call.headers["platform"])

	var decoded ItemProcessedEvent
	require.NoError(t, json.Unmarshal(call.value, &decoded))
	assert.Equal(t, event.ItemID, decoded.ItemID)
	assert.Equal(t, event.Tier, decoded.Tier)
	assert.Equal(t, event.Score.Combined, decoded.Score.Combined)
	assert.True(t, decoded.Score.ShouldProcess)
	assert.Equal(t, SchemaVersion, decoded.SchemaVersion)
}

func TestPublishFindingsEncodesEvent(t *testing.T) {
	fake := &fakeProducer{}
	pub := NewPublisher(fake, testLogger())

	event := FindingsEvent{
		Opportunities: []insight.Signal{{Topic: "urgent", Indicator: "bullish", Kind: insight.SignalOpportunity}},
		Risks:         []insight.Signal{{Topic: "high", Indicator: "volatile", Kind: insight.SignalRisk}},
		Summaries: map[string]insight.TopicSummary{
			"urgent": {Topic: "urgent", Summary: "bullish chatter", Records: 3},
		},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, pub.PublishFindings(context.Background(), event))

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, TopicFindings, call.topic)
	assert.Equal(t, []byte("2026-01-02T03:04:05Z"), call.key)
	assert.Equal(t, "findings", call.headers["event_type"])

	var decoded FindingsEvent
	require.NoError(t, json.Unmarshal(call.value, &decoded))
	require.Len(t, decoded.Opportunities, 1)
	assert.Equal(t, "bullish", decoded.Opportunities[0].Indicator)
	require.Len(t, decoded.Risks, 1)
	assert.Equal(t, insight.SignalRisk, decoded.Risks[0].Kind)
	assert.Equal(t, 3, decoded.Summaries["urgent"].Records)
	assert.Equal(t, SchemaVersion, decoded.SchemaVersion)
}

func TestNilProducerDropsEvents(t *testing.T) {
	pub := NewPublisher(nil, testLogger())

	assert.NoError(t, pub.PublishItemProcessed(context.Background(), ItemProcessedEvent{ItemID: "x"}))
	assert.NoError(t, pub.PublishFindings(context.Background(), FindingsEvent{}))
}

func TestPublishPropagatesProducerError(t *testing.T) {
	fake := &fakeProducer{produceErr: errors.New("broker down")}
	pub := NewPublisher(fake, testLogger())

	err := pub.PublishItemProcessed(context.Background(), ItemProcessedEvent{ItemID: "x"})
	assert.ErrorContains(t, err, "broker down")
}
