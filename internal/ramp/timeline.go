// Package ramp drives a pool of virtual users through a stage timeline.
//
// A Controller samples a Timeline on every tick, reconciles the Pool to the
// interpolated target and drains the pool gracefully once the timeline is
// complete or the run is stopped. Workers run a user supplied Scenario in a
// loop; a worker is never interrupted in the middle of an iteration.
package ramp

import (
	"fmt"
	"time"
)

// Stage is one ramp segment: move linearly to Target over Duration.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count reached at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// StageKind classifies a stage by the direction of its ramp.
type StageKind string

const (
	StageRampUp   StageKind = "ramp-up"
	StageSteady   StageKind = "steady"
	StageRampDown StageKind = "ramp-down"
)

// Timeline computes the target concurrency at any elapsed time.
//
// It is immutable once built and safe for concurrent use.
type Timeline struct {
	startVUs int
	stages   []Stage
	ends     []time.Duration // cumulative end offset of each stage
	total    time.Duration
}

// NewTimeline validates the stages and builds a Timeline.
//
// Returns an error matching ErrInvalidConfig if there are no stages, a stage
// has a non-positive duration or a negative target, or startVUs is negative.
func NewTimeline(startVUs int, stages []Stage) (*Timeline, error) {
	errs := &ValidationErrors{}
	validateStages(startVUs, stages, errs)
	if errs.HasErrors() {
		return nil, errs
	}

	t := &Timeline{
		startVUs: startVUs,
		stages:   make([]Stage, len(stages)),
		ends:     make([]time.Duration, len(stages)),
	}
	copy(t.stages, stages)

	for i, stage := range t.stages {
		t.total += stage.Duration
		t.ends[i] = t.total
	}
	return t, nil
}

func validateStages(startVUs int, stages []Stage, errs *ValidationErrors) {
	if startVUs < 0 {
		errs.Add("startVUs", "startVUs must be >= 0")
	}
	if len(stages) == 0 {
		errs.Add("stages", "at least one stage is required")
	}
	for i, stage := range stages {
		if stage.Duration <= 0 {
			errs.Add(fmt.Sprintf("stages[%d].duration", i), "duration must be > 0")
		}
		if stage.Target < 0 {
			errs.Add(fmt.Sprintf("stages[%d].target", i), "target must be >= 0")
		}
	}
}

// TargetAt returns the target VU count at the given elapsed time.
//
// Within a stage the value is interpolated linearly between the previous
// stage's target (startVUs for the first stage) and the stage's own target,
// then rounded to the nearest integer.
func (t *Timeline) TargetAt(elapsed time.Duration) int {
	if elapsed < 0 {
		return t.startVUs
	}
	if elapsed >= t.total {
		return t.stages[len(t.stages)-1].Target
	}

	i := t.stageIndex(elapsed)
	stage := t.stages[i]
	stageStart := t.ends[i] - stage.Duration
	from := t.startFor(i)

	progress := float64(elapsed-stageStart) / float64(stage.Duration)
	target := float64(from) + float64(stage.Target-from)*progress
	return int(target + 0.5) // Round to nearest
}

// IsComplete reports whether elapsed is at or past the end of the last stage.
func (t *Timeline) IsComplete(elapsed time.Duration) bool {
	return elapsed >= t.total
}

// StageAt returns the index and kind of the stage active at elapsed.
// Past the end, the last stage is reported.
func (t *Timeline) StageAt(elapsed time.Duration) (int, StageKind) {
	i := len(t.stages) - 1
	if elapsed < t.total {
		i = t.stageIndex(elapsed)
	}

	from := t.startFor(i)
	switch target := t.stages[i].Target; {
	case target > from:
		return i, StageRampUp
	case target < from:
		return i, StageRampDown
	default:
		return i, StageSteady
	}
}

// Progress returns how far through the timeline elapsed is, from 0.0 to 1.0.
func (t *Timeline) Progress(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= t.total {
		return 1
	}
	return float64(elapsed) / float64(t.total)
}

// TotalDuration is the sum of all stage durations.
func (t *Timeline) TotalDuration() time.Duration {
	return t.total
}

// StartVUs returns the concurrency before the first stage.
func (t *Timeline) StartVUs() int {
	return t.startVUs
}

// Stages returns a copy of the stage sequence.
func (t *Timeline) Stages() []Stage {
	out := make([]Stage, len(t.stages))
	copy(out, t.stages)
	return out
}

// MaxTarget returns the highest concurrency the timeline ever asks for.
func (t *Timeline) MaxTarget() int {
	highest := t.startVUs
	for _, stage := range t.stages {
		if stage.Target > highest {
			highest = stage.Target
		}
	}
	return highest
}

// stageIndex finds the stage containing elapsed, assuming 0 <= elapsed < total.
func (t *Timeline) stageIndex(elapsed time.Duration) int {
	for i, end := range t.ends {
		if elapsed < end {
			return i
		}
	}
	return len(t.ends) - 1
}

func (t *Timeline) startFor(i int) int {
	if i == 0 {
		return t.startVUs
	}
	return t.stages[i-1].Target
}
