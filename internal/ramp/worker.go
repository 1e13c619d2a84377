package ramp

import (
	"sync/atomic"
)

// WorkerState represents the lifecycle state of a worker.
type WorkerState int32

const (
	// WorkerIdle indicates the worker is between iterations.
	WorkerIdle WorkerState = iota
	// WorkerRunning indicates the worker is inside an iteration.
	WorkerRunning
	// WorkerStopping indicates the worker has been asked to stop and will
	// exit once its current iteration, if any, completes.
	WorkerStopping
	// WorkerStopped indicates the worker goroutine has exited.
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker is one virtual user: a goroutine looping over scenario iterations.
type Worker struct {
	// Unique identifier for this worker within its pool
	ID int

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	// Closed when a stop is requested; interrupts pacing only
	stopCh chan struct{}

	// Closed when the worker goroutine exits
	doneCh chan struct{}

	iteration atomic.Int64
}

func newWorker(id int) *Worker {
	return &Worker{
		ID:     id,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// State returns the current worker state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Iterations returns how many iterations this worker has started.
func (w *Worker) Iterations() int64 {
	return w.iteration.Load()
}

// Done is closed once the worker has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.doneCh
}

// RequestStop asks the worker to exit after its current iteration.
// It never interrupts an iteration in progress and is safe to call repeatedly.
func (w *Worker) RequestStop() {
	for {
		current := WorkerState(w.state.Load())
		if current == WorkerStopping || current == WorkerStopped {
			return
		}
		if w.state.CompareAndSwap(int32(current), int32(WorkerStopping)) {
			close(w.stopCh)
			return
		}
	}
}

// beginIteration moves Idle to Running. It fails if a stop was requested.
func (w *Worker) beginIteration() (int64, bool) {
	if !w.state.CompareAndSwap(int32(WorkerIdle), int32(WorkerRunning)) {
		return 0, false
	}
	return w.iteration.Add(1), true
}

// endIteration moves Running back to Idle. It fails if a stop arrived
// while the iteration was in flight.
func (w *Worker) endIteration() bool {
	return w.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerIdle))
}

// markStopped is called by the pool when the worker goroutine exits.
func (w *Worker) markStopped() {
	w.state.Store(int32(WorkerStopped))
	close(w.doneCh)
}
