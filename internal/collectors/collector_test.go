package collectors

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/crowsnest/internal/content"
	"frameworks/crowsnest/internal/egress"
	"frameworks/crowsnest/pkg/logging"
)

func testLogger() logging.Logger {
	logger := logging.NewLogger()
	logger.SetOutput(io.Discard)
	return logger
}

func testExecutor(t *testing.T) *egress.Executor {
	t.Helper()
	rotator, err := egress.NewRotator([]egress.Identity{{Name: "test", UserAgent: "crowsnest-test"}}, testLogger(), nil)
	require.NoError(t, err)
	return egress.NewExecutor(rotator, egress.Policy{
		MaxAttempts: 1,
		BackoffMin:  time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
		Timeout:     time.Second,
	}, testLogger(), nil)
}

func TestDetectorKeywordAlerts(t *testing.T) {
	d := NewDetector([]string{"Airdrop", " exploit "})
	source := content.Item{
		ID:       "p1",
		Platform: content.PlatformReddit,
		Author:   "alice",
		Body:     "Massive airdrop announced, possible exploit vector",
		Kind:     content.KindPost,
	}

	got := d.Detect(source)

	require.Len(t, got, 2)
	assert.Equal(t, content.KindKeywordAlert, got[0].Kind)
	assert.Equal(t, "p1:kw:airdrop", got[0].ID)
	assert.Contains(t, got[0].Body, "Watch keyword airdrop spotted")
	assert.Equal(t, "airdrop", got[0].Metadata["keyword"])
	assert.Equal(t, "p1", got[0].Metadata["source_id"])
	assert.Equal(t, "exploit", got[1].Metadata["keyword"])
}

func TestDetectorContractDetection(t *testing.T) {
	d := NewDetector(nil)
	addr := "0xDEADBEEFdeadbeefDEADBEEFdeadbeefDEADBEEF"
	source := content.Item{
		ID:   "p2",
		Body: "token at " + addr + " mentioned twice " + addr,
	}

	got := d.Detect(source)

	// Repeated mentions of the same address collapse to one detection.
	require.Len(t, got, 1)
	assert.Equal(t, content.KindContractDetection, got[0].Kind)
	assert.Equal(t, "p2:contract:"+strings.ToLower(addr), got[0].ID)
	assert.Equal(t, addr, got[0].Metadata["contract_address"])
	assert.Contains(t, got[0].Body, "Contract address")
}

func TestDetectorQuietBody(t *testing.T) {
	d := NewDetector([]string{"airdrop"})
	assert.Empty(t, d.Detect(content.Item{ID: "p3", Body: "quiet day on chain"}))
}

func TestSeenSetEvictsOldest(t *testing.T) {
	s := newSeenSet(2)

	assert.False(t, s.Observe("a"))
	assert.False(t, s.Observe("b"))
	assert.True(t, s.Observe("a"))

	// "c" pushes "a" out of the window.
	assert.False(t, s.Observe("c"))
	assert.False(t, s.Observe("a"))
	assert.True(t, s.Observe("c"))
}
