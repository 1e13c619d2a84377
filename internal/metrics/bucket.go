package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBucket holds metrics for one emitter interval.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	TotalIterations int64 `json:"totalIterations"`
	TotalOK         int64 `json:"totalOk"`
	TotalFailed     int64 `json:"totalFailed"`

	IntervalIterations  int64   `json:"intervalIterations"`
	IntervalRate        float64 `json:"intervalRate"`
	IntervalFailureRate float64 `json:"intervalFailureRate"`

	DurationP50 time.Duration `json:"durationP50"`
	DurationP95 time.Duration `json:"durationP95"`
	DurationP99 time.Duration `json:"durationP99"`

	ActiveWorkers int   `json:"activeWorkers"`
	Phase         Phase `json:"phase"`
}

// TimeBucketStore stores time-bucketed metrics in a ring buffer.
//
// Buckets are produced even for intervals in which no iteration finished, so
// the series stays continuous. Old buckets are discarded once the buffer is
// full.
type TimeBucketStore struct {
	buckets    []*TimeBucket
	head       int // next write position
	count      int
	maxBuckets int
	mu         sync.RWMutex

	lastBucketTime time.Time

	// current interval accumulators
	currentIterations atomic.Int64
	currentFailures   atomic.Int64
}

// NewTimeBucketStore creates a store retaining at most maxBuckets buckets.
// For a 1-hour run with 1-second buckets, use maxBuckets=3600.
func NewTimeBucketStore(maxBuckets int) *TimeBucketStore {
	if maxBuckets <= 0 {
		maxBuckets = 3600
	}

	return &TimeBucketStore{
		buckets:        make([]*TimeBucket, maxBuckets),
		maxBuckets:     maxBuckets,
		lastBucketTime: time.Now(),
	}
}

// RecordIteration adds one finished iteration to the current interval.
func (tbs *TimeBucketStore) RecordIteration(ok bool) {
	tbs.currentIterations.Add(1)
	if !ok {
		tbs.currentFailures.Add(1)
	}
}

// CreateBucket closes the current interval and appends it to the buffer.
func (tbs *TimeBucketStore) CreateBucket(
	totalIterations, totalOK, totalFailed int64,
	durations DurationPercentiles,
	activeWorkers int,
	phase Phase,
) *TimeBucket {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()

	now := time.Now()

	intervalIterations := tbs.currentIterations.Swap(0)
	intervalFailures := tbs.currentFailures.Swap(0)

	seconds := now.Sub(tbs.lastBucketTime).Seconds()
	if seconds <= 0 {
		seconds = 1.0
	}

	failureRate := 0.0
	if intervalIterations > 0 {
		failureRate = float64(intervalFailures) / float64(intervalIterations)
	}

	bucket := &TimeBucket{
		Timestamp:           now,
		TotalIterations:     totalIterations,
		TotalOK:             totalOK,
		TotalFailed:         totalFailed,
		IntervalIterations:  intervalIterations,
		IntervalRate:        float64(intervalIterations) / seconds,
		IntervalFailureRate: failureRate,
		DurationP50:         durations.P50,
		DurationP95:         durations.P95,
		DurationP99:         durations.P99,
		ActiveWorkers:       activeWorkers,
		Phase:               phase,
	}

	tbs.buckets[tbs.head] = bucket
	tbs.head = (tbs.head + 1) % tbs.maxBuckets
	if tbs.count < tbs.maxBuckets {
		tbs.count++
	}
	tbs.lastBucketTime = now

	return bucket
}

// GetBuckets returns all buckets in chronological order.
func (tbs *TimeBucketStore) GetBuckets() []*TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}

	result := make([]*TimeBucket, tbs.count)
	start := 0
	if tbs.count == tbs.maxBuckets {
		start = tbs.head
	}
	for i := 0; i < tbs.count; i++ {
		result[i] = tbs.buckets[(start+i)%tbs.maxBuckets]
	}
	return result
}

// GetBucketsForPhase returns the buckets recorded during phase.
func (tbs *TimeBucketStore) GetBucketsForPhase(phase Phase) []*TimeBucket {
	var result []*TimeBucket
	for _, b := range tbs.GetBuckets() {
		if b.Phase == phase {
			result = append(result, b)
		}
	}
	return result
}

// GetLatestBucket returns the most recent bucket, or nil if none.
func (tbs *TimeBucketStore) GetLatestBucket() *TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}
	return tbs.buckets[(tbs.head-1+tbs.maxBuckets)%tbs.maxBuckets]
}

// Count returns the current number of buckets stored.
func (tbs *TimeBucketStore) Count() int {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()
	return tbs.count
}

// SteadyStateRate returns the average iterations per bucket during steady
// stages and the number of buckets it was computed from.
func (tbs *TimeBucketStore) SteadyStateRate() (float64, int) {
	steady := tbs.GetBucketsForPhase(PhaseSteady)
	if len(steady) == 0 {
		return 0, 0
	}

	var sum float64
	for _, b := range steady {
		sum += b.IntervalRate
	}
	return sum / float64(len(steady)), len(steady)
}
