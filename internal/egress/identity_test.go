package egress

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/crowsnest/pkg/logging"
)

func testLogger() logging.Logger {
	logger := logging.NewLogger()
	logger.SetOutput(io.Discard)
	return logger
}

func testPool() []Identity {
	return []Identity{
		{Name: "alpha", UserAgent: "ua-alpha"},
		{Name: "bravo", UserAgent: "ua-bravo"},
		{Name: "charlie", UserAgent: "ua-charlie"},
	}
}

func TestNewRotatorRejectsEmptyPool(t *testing.T) {
	_, err := NewRotator(nil, testLogger(), nil)
	assert.Error(t, err)
}

func TestNewRotatorRejectsDuplicateNames(t *testing.T) {
	pool := []Identity{{Name: "alpha"}, {Name: "alpha"}}
	_, err := NewRotator(pool, testLogger(), nil)
	assert.Error(t, err)
}

func TestAcquirePrefersWorkingSet(t *testing.T) {
	r, err := NewRotator(testPool(), testLogger(), nil)
	require.NoError(t, err)

	r.ReportSuccess(Identity{Name: "bravo"})

	for i := 0; i < 20; i++ {
		assert.Equal(t, "bravo", r.Acquire().Name)
	}
}

func TestAcquireSkipsFailedIdentities(t *testing.T) {
	r, err := NewRotator(testPool(), testLogger(), nil)
	require.NoError(t, err)

	r.ReportFailure(Identity{Name: "alpha"})
	r.ReportFailure(Identity{Name: "bravo"})

	for i := 0; i < 20; i++ {
		assert.Equal(t, "charlie", r.Acquire().Name)
	}
}

func TestAcquireResetsWhenAllFailed(t *testing.T) {
	r, err := NewRotator(testPool(), testLogger(), nil)
	require.NoError(t, err)

	for _, id := range testPool() {
		r.ReportFailure(id)
	}
	require.Equal(t, 3, r.Stats().Failed)

	id := r.Acquire()
	assert.NotEmpty(t, id.Name)

	// The full reset cleared the failed set so identities can be retried.
	stats := r.Stats()
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 0, stats.Working)
}

func TestReportSuccessClearsFailedState(t *testing.T) {
	r, err := NewRotator(testPool(), testLogger(), nil)
	require.NoError(t, err)

	r.ReportFailure(Identity{Name: "alpha"})
	r.ReportSuccess(Identity{Name: "alpha"})

	stats := r.Stats()
	assert.Equal(t, 1, stats.Working)
	assert.Equal(t, 0, stats.Failed)
}

func TestReportsIgnoreUnknownIdentity(t *testing.T) {
	r, err := NewRotator(testPool(), testLogger(), nil)
	require.NoError(t, err)

	r.ReportFailure(Identity{Name: "ghost"})
	r.ReportSuccess(Identity{Name: "ghost"})

	stats := r.Stats()
	assert.Equal(t, 0, stats.Working)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 3, stats.Pool)
}
