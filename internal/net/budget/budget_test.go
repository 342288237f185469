package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Consume(t *testing.T) {
	tracker := NewTracker("ccld", 10, 0, 0.8)

	for i := 0; i < 8; i++ {
		require.NoError(t, tracker.Consume())
	}
	stats := tracker.Stats()
	assert.True(t, stats.Warning)
	assert.Equal(t, int64(2), stats.Remaining)

	require.NoError(t, tracker.Consume())
	require.NoError(t, tracker.Consume())

	err := tracker.Consume()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "ccld", exhausted.Source)
	assert.Equal(t, int64(10), tracker.Stats().Used, "failed consume is not counted")
}

func TestTracker_ResetsDaily(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := NewTracker("cacfp", 1, 6, 0.5)
	tracker.now = func() time.Time { return now }
	tracker.lastReset = lastReset(now, 6)

	require.NoError(t, tracker.Consume())
	require.Error(t, tracker.Consume())

	now = now.Add(19 * time.Hour) // 05:00 next day, before the reset hour
	require.Error(t, tracker.Consume())

	now = now.Add(time.Hour)
	assert.NoError(t, tracker.Consume())
}

func TestTracker_Unlimited(t *testing.T) {
	tracker := NewTracker("registry", 0, 0, 0)
	for i := 0; i < 50; i++ {
		require.NoError(t, tracker.Consume())
	}
	assert.False(t, tracker.Stats().Warning)
}

func TestManager(t *testing.T) {
	m := NewManager()
	m.AddSource("ccld", 1, 0, 0.9)

	assert.NoError(t, m.Consume("unknown"))
	assert.NoError(t, m.Consume("ccld"))
	assert.ErrorIs(t, m.Consume("ccld"), ErrExhausted)

	stats := m.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Used)
}
