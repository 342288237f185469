package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestStepLogger_Timings(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	sl := newStepLogger("test", []string{"fetch", "lowcap", "deep"}, clock.now)

	sl.StartStep("fetch")
	clock.advance(3 * time.Second)
	sl.StartStep("lowcap")
	clock.advance(time.Second)
	sl.StartStep("unknown")
	clock.advance(time.Second)
	sl.StartStep("deep")
	clock.advance(2 * time.Second)

	total := sl.Finish()
	assert.Equal(t, 7*time.Second, total)
	assert.Equal(t, 3*time.Second, sl.StepTime("fetch"))
	assert.Equal(t, 2*time.Second, sl.StepTime("lowcap"))
	assert.Equal(t, 2*time.Second, sl.StepTime("deep"))
	assert.Zero(t, sl.StepTime("missing"))
}

func TestStepLogger_CompleteIsIdempotent(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	sl := newStepLogger("test", []string{"fetch"}, clock.now)

	sl.CompleteStep()
	assert.Zero(t, sl.StepTime("fetch"))

	sl.StartStep("fetch")
	clock.advance(time.Second)
	sl.CompleteStep()
	clock.advance(time.Minute)
	sl.CompleteStep()
	assert.Equal(t, time.Second, sl.StepTime("fetch"))

	assert.Equal(t, "fetch", sl.currentStepName())
	sl.Fail(errors.New("boom"))
}
