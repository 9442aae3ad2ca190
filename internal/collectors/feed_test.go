package collectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/crowsnest/internal/content"
)

const feedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Chain Watch</title>
<link>https://chainwatch.example.com</link>
<item><guid>g1</guid><title>Protocol vulnerability disclosed</title><description>patch incoming</description><link>https://chainwatch.example.com/1</link><pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate></item>
<item><guid>g2</guid><title>quiet day</title><link>https://chainwatch.example.com/2</link></item>
</channel></rss>`

func TestFeedCollectorScan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedFixture))
	}))
	defer srv.Close()

	c := NewFeedCollector(testExecutor(t), NewDetector([]string{"vulnerability"}), FeedConfig{
		URLs: []string{srv.URL},
	}, testLogger())

	items, err := c.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	first := items[0]
	assert.Equal(t, "g1", first.ID)
	assert.Equal(t, content.PlatformRSS, first.Platform)
	assert.Equal(t, "Chain Watch", first.Author)
	assert.Equal(t, "Protocol vulnerability disclosed\n\npatch incoming", first.Body)
	assert.IsType(t, content.FeedMetrics{}, first.Metrics)
	assert.True(t, first.CreatedAt.Equal(time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)))

	assert.Equal(t, content.KindKeywordAlert, items[1].Kind)
	assert.Equal(t, "g2", items[2].ID)

	again, err := c.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestFeedCollectorLimitsItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedFixture))
	}))
	defer srv.Close()

	c := NewFeedCollector(testExecutor(t), NewDetector(nil), FeedConfig{
		URLs:     []string{srv.URL},
		MaxItems: 1,
	}, testLogger())

	items, err := c.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "g1", items[0].ID)
}

func TestFeedCollectorBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a feed"))
	}))
	defer srv.Close()

	c := NewFeedCollector(testExecutor(t), NewDetector(nil), FeedConfig{
		URLs: []string{srv.URL},
	}, testLogger())

	items, err := c.Scan(context.Background())
	assert.Error(t, err)
	assert.Empty(t, items)
}
