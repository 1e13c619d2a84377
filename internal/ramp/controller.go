package ramp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTickInterval is how often the controller samples the timeline.
const DefaultTickInterval = time.Second

// Phase is the controller's run phase.
type Phase int32

const (
	// PhasePending is the phase before Run is called.
	PhasePending Phase = iota
	// PhaseRamping means the controller is following the timeline.
	PhaseRamping
	// PhaseDraining means all workers were asked to stop and the controller
	// waits for their in-flight iterations.
	PhaseDraining
	// PhaseDone means the run has finished.
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseRamping:
		return "ramping"
	case PhaseDraining:
		return "draining"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase by name in JSON output.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Config is the immutable configuration of a run.
type Config struct {
	// StartVUs is the concurrency before the first stage begins
	StartVUs int

	// Stages define the target concurrency curve
	Stages []Stage

	// Pace is the pause each worker takes between iterations
	Pace time.Duration

	// TickInterval is how often the timeline is sampled (default: 1s)
	TickInterval time.Duration

	// GracefulStop bounds how long Run waits for in-flight iterations while
	// draining. 0 waits until every worker has exited. Workers are never
	// interrupted either way.
	GracefulStop time.Duration

	// MaxWorkers caps concurrently running worker goroutines (0 = unlimited)
	MaxWorkers int

	// Sink receives every iteration outcome (default: discard)
	Sink OutcomeSink

	// Clock drives ticks, pacing and iteration timing (default: real time)
	Clock Clock

	// Logger for run events (default: disabled)
	Logger *zerolog.Logger
}

// Validate checks the configuration without building anything.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}
	validateStages(c.StartVUs, c.Stages, errs)

	if c.Pace < 0 {
		errs.Add("pace", "pace must be >= 0")
	}
	if c.TickInterval < 0 {
		errs.Add("tickInterval", "tickInterval must be >= 0")
	}
	if c.GracefulStop < 0 {
		errs.Add("gracefulStop", "gracefulStop must be >= 0")
	}
	if c.MaxWorkers < 0 {
		errs.Add("maxWorkers", "maxWorkers must be >= 0")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Summary is returned by Run once the controller reaches PhaseDone.
//
// Aggregating outcomes into latency or check statistics is left to the Sink.
type Summary struct {
	RunID         string        `json:"runId"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime"`
	Duration      time.Duration `json:"duration"`
	Iterations    int64         `json:"iterations"`
	PeakWorkers   int           `json:"peakWorkers"`
	SpawnFailures int64         `json:"spawnFailures"`
	Interrupted   bool          `json:"interrupted"`
	DrainTimedOut bool          `json:"drainTimedOut"`
	FinalPhase    Phase         `json:"finalPhase"`
}

// Stats is a point-in-time view of a running controller.
type Stats struct {
	RunID         string
	Phase         Phase
	Elapsed       time.Duration
	TotalDuration time.Duration
	Progress      float64

	TargetWorkers int
	ActiveWorkers int
	LiveWorkers   int

	Iterations    int64
	SpawnFailures int64

	CurrentStage     int
	CurrentStageName string
	StageKind        StageKind
	TotalStages      int
}

// Controller drives a Pool through a Timeline.
//
// It is the only writer of the run phase and elapsed time; every other
// component only reads them.
type Controller struct {
	cfg      Config
	timeline *Timeline
	pool     *Pool
	clock    Clock
	logger   zerolog.Logger
	runID    string

	phase   atomic.Int32
	elapsed atomic.Int64
	target  atomic.Int64
	started atomic.Bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New validates cfg and creates a controller ready to Run.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeline, err := NewTimeline(cfg.StartVUs, cfg.Stages)
	if err != nil {
		return nil, err
	}

	if cfg.TickInterval == 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Sink == nil {
		cfg.Sink = DiscardSink
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	runID := uuid.NewString()
	logger = logger.With().Str("run", runID).Logger()

	return &Controller{
		cfg:      cfg,
		timeline: timeline,
		clock:    cfg.Clock,
		logger:   logger,
		runID:    runID,
		stopCh:   make(chan struct{}),
		pool: NewPool(nil, PoolConfig{
			Pace:       cfg.Pace,
			MaxWorkers: cfg.MaxWorkers,
			Sink:       cfg.Sink,
			Clock:      cfg.Clock,
			Logger:     logger,
		}),
	}, nil
}

// Run is a convenience wrapper around New and Controller.Run.
func Run(ctx context.Context, cfg Config, scenario Scenario) (*Summary, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, scenario)
}

// Run follows the timeline until it completes, Stop is called or ctx is
// cancelled, then drains the pool and returns the run summary.
//
// Cancelling ctx never aborts an iteration in flight; it only ends ramping.
func (c *Controller) Run(ctx context.Context, scenario Scenario) (*Summary, error) {
	if scenario == nil {
		return nil, &ValidationError{Field: "scenario", Message: "scenario is required"}
	}
	if !c.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	// No worker exists yet, so this write happens before any read.
	c.pool.runner.scenario = scenario

	start := c.clock.Now()
	summary := &Summary{RunID: c.runID, StartTime: start}

	c.setPhase(PhaseRamping)
	c.logger.Info().
		Int("startVUs", c.timeline.StartVUs()).
		Int("stages", len(c.cfg.Stages)).
		Dur("duration", c.timeline.TotalDuration()).
		Msg("run started")

	// A run stopped before it began spawns nothing.
	summary.Interrupted = c.stopped(ctx)
	if !summary.Interrupted && !c.tick(ctx, start) {
		summary.Interrupted = c.follow(ctx, start)
	}

	c.setPhase(PhaseDraining)
	c.logger.Info().
		Int("active", c.pool.Active()).
		Bool("interrupted", summary.Interrupted).
		Msg("draining workers")

	drainCtx := context.WithoutCancel(ctx)
	if c.cfg.GracefulStop > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(drainCtx, c.cfg.GracefulStop)
		defer cancel()
	}
	if err := c.pool.DrainAll(drainCtx); err != nil {
		summary.DrainTimedOut = true
		c.logger.Warn().
			Int("active", c.pool.Active()).
			Dur("gracefulStop", c.cfg.GracefulStop).
			Msg("graceful stop expired, workers still finishing")
	}

	c.setPhase(PhaseDone)

	summary.EndTime = c.clock.Now()
	summary.Duration = summary.EndTime.Sub(start)
	summary.Iterations = c.pool.Iterations()
	summary.PeakWorkers = c.pool.Peak()
	summary.SpawnFailures = c.pool.SpawnFailures()
	summary.FinalPhase = PhaseDone

	c.logger.Info().
		Int64("iterations", summary.Iterations).
		Int("peakWorkers", summary.PeakWorkers).
		Dur("duration", summary.Duration).
		Msg("run finished")

	return summary, nil
}

// follow runs the tick loop. It returns true if the run was stopped before
// the timeline completed.
func (c *Controller) follow(ctx context.Context, start time.Time) bool {
	ticker := c.clock.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-c.stopCh:
			return true
		case <-ticker.C():
			if c.tick(ctx, start) {
				return false
			}
		}
	}
}

// stopped reports whether ctx is done or Stop was called.
func (c *Controller) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// tick samples the timeline, reconciles the pool and reports completion.
func (c *Controller) tick(ctx context.Context, start time.Time) bool {
	elapsed := c.clock.Since(start)
	c.elapsed.Store(int64(elapsed))

	target := c.timeline.TargetAt(elapsed)
	if previous := c.target.Swap(int64(target)); previous != int64(target) {
		c.logger.Debug().
			Dur("elapsed", elapsed).
			Int("target", target).
			Msg("target changed")
	}

	c.pool.Reconcile(ctx, target)
	return c.timeline.IsComplete(elapsed)
}

// Stop ends ramping and moves the run to draining. Safe to call repeatedly
// and before or after Run.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Phase returns the current run phase.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

// Elapsed returns the elapsed time sampled at the last tick.
func (c *Controller) Elapsed() time.Duration {
	return time.Duration(c.elapsed.Load())
}

// ActiveWorkers returns the worker-count gauge.
func (c *Controller) ActiveWorkers() int {
	return c.pool.Active()
}

// Timeline returns the timeline the controller follows.
func (c *Controller) Timeline() *Timeline {
	return c.timeline
}

// RunID identifies this run in logs and summaries.
func (c *Controller) RunID() string {
	return c.runID
}

// Stats returns a snapshot for progress reporting.
func (c *Controller) Stats() *Stats {
	elapsed := c.Elapsed()
	stageIdx, kind := c.timeline.StageAt(elapsed)

	return &Stats{
		RunID:            c.runID,
		Phase:            c.Phase(),
		Elapsed:          elapsed,
		TotalDuration:    c.timeline.TotalDuration(),
		Progress:         c.timeline.Progress(elapsed),
		TargetWorkers:    int(c.target.Load()),
		ActiveWorkers:    c.pool.Active(),
		LiveWorkers:      c.pool.Live(),
		Iterations:       c.pool.Iterations(),
		SpawnFailures:    c.pool.SpawnFailures(),
		CurrentStage:     stageIdx,
		CurrentStageName: c.timeline.stages[stageIdx].Name,
		StageKind:        kind,
		TotalStages:      len(c.timeline.stages),
	}
}

func (c *Controller) setPhase(p Phase) {
	old := Phase(c.phase.Swap(int32(p)))
	if old != p {
		c.logger.Debug().Stringer("from", old).Stringer("to", p).Msg("phase changed")
	}
}
