// Package log tracks multi-step pipeline runs on top of the global zerolog logger.
package log

import (
	"time"

	"github.com/rs/zerolog/log"
)

// StepLogger provides step-by-step progress logging for pipelines
type StepLogger struct {
	name        string
	steps       []string
	currentStep int
	startTime   time.Time
	stepStart   time.Time
	stepTimes   []time.Duration
	now         func() time.Time
}

// NewStepLogger creates a new step logger for pipeline operations
func NewStepLogger(name string, steps []string) *StepLogger {
	return newStepLogger(name, steps, time.Now)
}

func newStepLogger(name string, steps []string, now func() time.Time) *StepLogger {
	start := now()
	return &StepLogger{
		name:        name,
		steps:       steps,
		currentStep: -1,
		startTime:   start,
		stepStart:   start,
		stepTimes:   make([]time.Duration, len(steps)),
		now:         now,
	}
}

// StartStep begins a new pipeline step. Unknown steps are logged and ignored.
func (sl *StepLogger) StartStep(stepName string) {
	stepIndex := -1
	for i, step := range sl.steps {
		if step == stepName {
			stepIndex = i
			break
		}
	}
	if stepIndex == -1 {
		log.Warn().Str("step", stepName).Msg("Unknown pipeline step")
		return
	}

	sl.CompleteStep()
	sl.currentStep = stepIndex
	sl.stepStart = sl.now()

	log.Info().
		Str("pipeline", sl.name).
		Str("step", stepName).
		Int("step_number", stepIndex+1).
		Int("total_steps", len(sl.steps)).
		Msg("Starting pipeline step")
}

// CompleteStep records the duration of the current step
func (sl *StepLogger) CompleteStep() {
	if sl.currentStep < 0 || sl.stepTimes[sl.currentStep] != 0 {
		return
	}
	d := sl.now().Sub(sl.stepStart)
	if d <= 0 {
		d = time.Nanosecond
	}
	sl.stepTimes[sl.currentStep] = d
}

// StepTime returns the recorded duration of a completed step
func (sl *StepLogger) StepTime(stepName string) time.Duration {
	for i, step := range sl.steps {
		if step == stepName {
			return sl.stepTimes[i]
		}
	}
	return 0
}

// Finish completes the step logger and logs the timing summary
func (sl *StepLogger) Finish() time.Duration {
	sl.CompleteStep()
	total := sl.now().Sub(sl.startTime)

	log.Info().
		Str("pipeline", sl.name).
		Dur("total_duration", total).
		Msg("Pipeline completed - step timing summary:")

	for i, step := range sl.steps {
		percentage := 0.0
		if total > 0 {
			percentage = float64(sl.stepTimes[i]) / float64(total) * 100
		}
		log.Info().
			Str("step", step).
			Dur("duration", sl.stepTimes[i]).
			Float64("percentage", percentage).
			Msgf("  %d. %s", i+1, step)
	}
	return total
}

// Fail marks the step logger as failed
func (sl *StepLogger) Fail(err error) {
	log.Error().
		Str("pipeline", sl.name).
		Str("failed_step", sl.currentStepName()).
		Int("completed_steps", sl.currentStep).
		Int("total_steps", len(sl.steps)).
		Err(err).
		Msg("Pipeline failed")
}

func (sl *StepLogger) currentStepName() string {
	if sl.currentStep >= 0 && sl.currentStep < len(sl.steps) {
		return sl.steps[sl.currentStep]
	}
	return "unknown"
}
