// Package metrics aggregates iteration outcomes into run statistics.
//
// Engine consumes the outcome stream produced by the ramp package and keeps
// HDR histograms of iteration duration, per-status and per-check counters and
// a per-interval time series. Collector mirrors the same stream into
// Prometheus metrics.
package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/surge/internal/ramp"
)

// Phase is the reporting phase attached to time buckets.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"
	PhaseDraining Phase = "draining"
	PhaseDone     Phase = "done"
)

// PhaseOf maps controller stats to a reporting phase.
func PhaseOf(stats *ramp.Stats) Phase {
	if stats == nil {
		return PhaseInit
	}
	switch stats.Phase {
	case ramp.PhasePending:
		return PhaseInit
	case ramp.PhaseDraining:
		return PhaseDraining
	case ramp.PhaseDone:
		return PhaseDone
	}
	switch stats.StageKind {
	case ramp.StageRampUp:
		return PhaseRampUp
	case ramp.StageRampDown:
		return PhaseRampDown
	default:
		return PhaseSteady
	}
}

// StatsSource returns the current controller stats; it may return nil.
type StatsSource func() *ramp.Stats

// Engine collects and aggregates iteration outcomes using HDR histograms.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Record is called from every worker
// goroutine; counters use atomics and the histogram is mutex protected.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	durationHist   *hdrhistogram.Histogram
	durationHistMu sync.Mutex

	checks   map[string]*checkCounter
	checkOrd []string
	checksMu sync.Mutex

	total       atomic.Int64
	ok          atomic.Int64
	checkFailed atomic.Int64
	errored     atomic.Int64

	bucketStore *TimeBucketStore
	source      StatsSource

	phase        atomic.Value // Phase
	phaseMu      sync.Mutex
	phaseHistory []PhaseChange

	startTime time.Time

	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	stopOnce      sync.Once

	config EngineConfig
}

type checkCounter struct {
	passes atomic.Int64
	fails  atomic.Int64
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase      Phase     `json:"phase"`
	Timestamp  time.Time `json:"timestamp"`
	Iterations int64     `json:"iterations"`
}

// NewEngine creates a metrics engine with default configuration.
func NewEngine(source StatsSource) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig(), source)
}

// NewEngineWithConfig creates a metrics engine and starts its bucket emitter.
// Call Stop when the run is over.
func NewEngineWithConfig(config EngineConfig, source StatsSource) *Engine {
	defaults := DefaultEngineConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = defaults.BucketInterval
	}
	if config.MaxBuckets <= 0 {
		config.MaxBuckets = defaults.MaxBuckets
	}
	if config.HistogramMin < 1 {
		config.HistogramMin = defaults.HistogramMin
	}
	// hdrhistogram needs max >= 2*min.
	if config.HistogramMax < 2*config.HistogramMin {
		config.HistogramMax = max(defaults.HistogramMax, 2*config.HistogramMin)
	}
	if config.HistogramSigFigs < 1 || config.HistogramSigFigs > 5 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}
	if source == nil {
		source = func() *ramp.Stats { return nil }
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		durationHist:  hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		checks:        make(map[string]*checkCounter),
		bucketStore:   NewTimeBucketStore(config.MaxBuckets),
		source:        source,
		startTime:     time.Now(),
		emitterCtx:    ctx,
		emitterCancel: cancel,
		config:        config,
	}
	e.phase.Store(PhaseInit)

	e.emitterWg.Add(1)
	go e.runEmitter()

	return e
}

// Record implements ramp.OutcomeSink.
func (e *Engine) Record(o ramp.Outcome) {
	micros := o.Duration.Microseconds()
	if micros < e.config.HistogramMin {
		micros = e.config.HistogramMin
	}
	if micros > e.config.HistogramMax {
		micros = e.config.HistogramMax
	}

	e.durationHistMu.Lock()
	_ = e.durationHist.RecordValue(micros)
	e.durationHistMu.Unlock()

	e.total.Add(1)
	switch o.Status {
	case ramp.StatusOK:
		e.ok.Add(1)
	case ramp.StatusCheckFailed:
		e.checkFailed.Add(1)
	default:
		e.errored.Add(1)
	}

	for _, c := range o.Checks {
		counter := e.checkCounter(c.Name)
		if c.Passed {
			counter.passes.Add(1)
		} else {
			counter.fails.Add(1)
		}
	}

	e.bucketStore.RecordIteration(o.Status == ramp.StatusOK)
}

func (e *Engine) checkCounter(name string) *checkCounter {
	e.checksMu.Lock()
	defer e.checksMu.Unlock()

	c, ok := e.checks[name]
	if !ok {
		c = &checkCounter{}
		e.checks[name] = c
		e.checkOrd = append(e.checkOrd, name)
	}
	return c
}

// SetPhase updates the current reporting phase.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.GetPhase() == phase {
		return
	}
	e.phase.Store(phase)
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:      phase,
		Timestamp:  time.Now(),
		Iterations: e.total.Load(),
	})
}

// GetPhase returns the current reporting phase.
func (e *Engine) GetPhase() Phase {
	return e.phase.Load().(Phase)
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// runEmitter runs the background time-bucket emitter.
func (e *Engine) runEmitter() {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.emitterCtx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

// emitBucket samples the controller and closes the current interval.
func (e *Engine) emitBucket() {
	stats := e.source()
	activeWorkers := 0
	if stats != nil {
		activeWorkers = stats.ActiveWorkers
		e.SetPhase(PhaseOf(stats))
	}

	e.bucketStore.CreateBucket(
		e.total.Load(), e.ok.Load(), e.total.Load()-e.ok.Load(),
		e.GetDurationPercentiles(), activeWorkers, e.GetPhase(),
	)
}

// GetDurationPercentiles returns current iteration duration percentiles.
func (e *Engine) GetDurationPercentiles() DurationPercentiles {
	e.durationHistMu.Lock()
	defer e.durationHistMu.Unlock()

	return DurationPercentiles{
		Min: micros(e.durationHist.Min()),
		Max: micros(e.durationHist.Max()),
		P50: micros(e.durationHist.ValueAtQuantile(50)),
		P90: micros(e.durationHist.ValueAtQuantile(90)),
		P95: micros(e.durationHist.ValueAtQuantile(95)),
		P99: micros(e.durationHist.ValueAtQuantile(99)),
	}
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	e.durationHistMu.Lock()
	duration := DurationStats{
		Min:    micros(e.durationHist.Min()),
		Max:    micros(e.durationHist.Max()),
		Mean:   micros(int64(e.durationHist.Mean())),
		StdDev: micros(int64(e.durationHist.StdDev())),
		P50:    micros(e.durationHist.ValueAtQuantile(50)),
		P90:    micros(e.durationHist.ValueAtQuantile(90)),
		P95:    micros(e.durationHist.ValueAtQuantile(95)),
		P99:    micros(e.durationHist.ValueAtQuantile(99)),
		Count:  e.durationHist.TotalCount(),
	}
	e.durationHistMu.Unlock()

	elapsed := time.Since(e.startTime)
	total := e.total.Load()
	ok := e.ok.Load()

	rate := 0.0
	if elapsed.Seconds() > 0 {
		rate = float64(total) / elapsed.Seconds()
	}

	failureRate := 0.0
	if total > 0 {
		failureRate = float64(total-ok) / float64(total)
	}

	activeWorkers := 0
	if stats := e.source(); stats != nil {
		activeWorkers = stats.ActiveWorkers
	}

	return &Snapshot{
		Iterations:    total,
		OK:            ok,
		CheckFailed:   e.checkFailed.Load(),
		Errors:        e.errored.Load(),
		FailureRate:   failureRate,
		IterationRate: rate,
		Duration:      duration,
		Checks:        e.GetCheckStats(),
		ActiveWorkers: activeWorkers,
		CurrentPhase:  e.GetPhase(),
		Elapsed:       elapsed,
		StartTime:     e.startTime,
		Timestamp:     time.Now(),
	}
}

// GetCheckStats returns pass/fail counts per check, in first-seen order.
func (e *Engine) GetCheckStats() []CheckStats {
	e.checksMu.Lock()
	names := make([]string, len(e.checkOrd))
	copy(names, e.checkOrd)
	e.checksMu.Unlock()

	result := make([]CheckStats, 0, len(names))
	for _, name := range names {
		c := e.checkCounter(name)
		passes, fails := c.passes.Load(), c.fails.Load()
		rate := 0.0
		if passes+fails > 0 {
			rate = float64(passes) / float64(passes+fails)
		}
		result = append(result, CheckStats{Name: name, Passes: passes, Fails: fails, PassRate: rate})
	}
	return result
}

// GetTimeSeries returns all time-series buckets.
func (e *Engine) GetTimeSeries() []*TimeBucket {
	return e.bucketStore.GetBuckets()
}

// SteadyStateRate returns the average iteration rate over steady-stage buckets.
func (e *Engine) SteadyStateRate() (float64, int) {
	return e.bucketStore.SteadyStateRate()
}

// Stop stops the emitter and emits a final bucket. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.emitterCancel()
		e.emitterWg.Wait()
		e.emitBucket()
	})
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	Iterations    int64         `json:"iterations"`
	OK            int64         `json:"ok"`
	CheckFailed   int64         `json:"checkFailed"`
	Errors        int64         `json:"errors"`
	FailureRate   float64       `json:"failureRate"`
	IterationRate float64       `json:"iterationRate"`
	Duration      DurationStats `json:"iterationDuration"`
	Checks        []CheckStats  `json:"checks,omitempty"`
	ActiveWorkers int           `json:"activeWorkers"`
	CurrentPhase  Phase         `json:"currentPhase"`
	Elapsed       time.Duration `json:"elapsed"`
	StartTime     time.Time     `json:"startTime"`
	Timestamp     time.Time     `json:"timestamp"`
}

// DurationStats contains iteration duration statistics.
type DurationStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// DurationPercentiles holds iteration duration percentile values.
type DurationPercentiles struct {
	Min time.Duration
	Max time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// CheckStats aggregates one named check across all iterations.
type CheckStats struct {
	Name     string  `json:"name"`
	Passes   int64   `json:"passes"`
	Fails    int64   `json:"fails"`
	PassRate float64 `json:"passRate"`
}

// SortChecksByName orders check stats alphabetically; used for stable output.
func SortChecksByName(stats []CheckStats) {
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
}

var _ ramp.OutcomeSink = (*Engine)(nil)
