package ramp

import (
	"context"
	"sync"
	"time"
)

// Scenario is one unit of work executed per iteration.
//
// Returning an error or panicking marks the iteration as failed; it never
// stops the worker. Checks are recorded through the Iteration.
type Scenario func(ctx context.Context, it *Iteration) error

// Status classifies an iteration outcome.
type Status string

const (
	StatusOK          Status = "ok"
	StatusCheckFailed Status = "check_failed"
	StatusError       Status = "error"
)

// CheckResult is a named boolean assertion evaluated during an iteration.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Iteration is handed to the scenario for a single run.
type Iteration struct {
	// WorkerID of the worker executing this iteration
	WorkerID int

	// Number is the 1-based iteration count for this worker
	Number int64

	checks []CheckResult
}

// Check records a named assertion and returns passed, so scenarios can write
// `if !it.Check("status was 200", resp.StatusCode == 200) { return nil }`.
func (it *Iteration) Check(name string, passed bool) bool {
	it.checks = append(it.checks, CheckResult{Name: name, Passed: passed})
	return passed
}

// Checks returns the checks recorded so far, in call order.
func (it *Iteration) Checks() []CheckResult {
	out := make([]CheckResult, len(it.checks))
	copy(out, it.checks)
	return out
}

// Outcome is the record produced for every iteration.
type Outcome struct {
	WorkerID  int           `json:"workerId"`
	Iteration int64         `json:"iteration"`
	Start     time.Time     `json:"start"`
	Duration  time.Duration `json:"duration"`
	Status    Status        `json:"status"`
	Checks    []CheckResult `json:"checks,omitempty"`
	Err       error         `json:"-"`
}

// ScenarioRunner executes one scenario iteration at a time, timing it and
// recovering any failure at the iteration boundary.
type ScenarioRunner struct {
	scenario Scenario
	clock    Clock
}

// NewScenarioRunner creates a runner. A nil clock uses RealClock.
func NewScenarioRunner(scenario Scenario, clock Clock) *ScenarioRunner {
	if clock == nil {
		clock = RealClock()
	}
	return &ScenarioRunner{scenario: scenario, clock: clock}
}

// Run executes iteration n for the given worker and returns its outcome.
func (r *ScenarioRunner) Run(ctx context.Context, workerID int, n int64) (out Outcome) {
	it := &Iteration{WorkerID: workerID, Number: n}
	start := r.clock.Now()

	out = Outcome{
		WorkerID:  workerID,
		Iteration: n,
		Start:     start,
	}

	defer func() {
		out.Duration = r.clock.Since(start)
		out.Checks = it.checks

		if p := recover(); p != nil {
			out.Status = StatusError
			out.Err = &IterationError{WorkerID: workerID, Iteration: n, Panic: p}
		}
	}()

	if err := r.scenario(ctx, it); err != nil {
		out.Status = StatusError
		out.Err = &IterationError{WorkerID: workerID, Iteration: n, Cause: err}
		return out
	}

	out.Status = StatusOK
	for _, c := range it.checks {
		if !c.Passed {
			out.Status = StatusCheckFailed
			break
		}
	}
	return out
}

// OutcomeSink consumes the per-iteration outcome stream.
//
// Record is called concurrently from every worker goroutine.
type OutcomeSink interface {
	Record(Outcome)
}

// SinkFunc adapts a function to an OutcomeSink.
type SinkFunc func(Outcome)

func (f SinkFunc) Record(o Outcome) { f(o) }

// MultiSink fans every outcome out to all sinks in order.
func MultiSink(sinks ...OutcomeSink) OutcomeSink {
	return multiSink(sinks)
}

type multiSink []OutcomeSink

func (m multiSink) Record(o Outcome) {
	for _, s := range m {
		if s != nil {
			s.Record(o)
		}
	}
}

// DiscardSink drops every outcome.
var DiscardSink OutcomeSink = SinkFunc(func(Outcome) {})

// CollectingSink keeps every outcome in memory. Useful for tests and small runs.
type CollectingSink struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (c *CollectingSink) Record(o Outcome) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, o)
	c.mu.Unlock()
}

// Outcomes returns a copy of the collected outcomes.
func (c *CollectingSink) Outcomes() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Outcome, len(c.outcomes))
	copy(out, c.outcomes)
	return out
}
