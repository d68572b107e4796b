package compress

import (
	"context"
	"sync/atomic"

	"github.com/leeforge/pngpress/concurrency"
)

// TaskState tracks a compression through the pool. It is informational;
// Done and Result are the synchronization points.
type TaskState int32

const (
	StateCreated TaskState = iota
	StateScheduled
	StateRunning
	StateSucceeded
	StateFailed
)

func (s TaskState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one compression: exactly one of Data and Err is
// set.
type Result struct {
	Data []byte
	Err  error
}

// Future resolves exactly once with the Result of a scheduled compression.
// Work cannot be cancelled once scheduled; Await only bounds how long the
// caller waits, and a result that arrives later is simply not observed.
type Future struct {
	f     *concurrency.Future[Result]
	state atomic.Int32
}

func newFuture() *Future {
	return &Future{f: concurrency.NewFuture[Result]()}
}

// Done is closed when the Result is available.
func (f *Future) Done() <-chan struct{} {
	return f.f.Done()
}

// Result blocks until the compression finishes.
func (f *Future) Result() Result {
	return f.f.Get()
}

// Await waits for the compressed bytes or for ctx to end, whichever comes
// first. The ctx error is returned in the latter case.
func (f *Future) Await(ctx context.Context) ([]byte, error) {
	res, err := f.f.Await(ctx)
	if err != nil {
		return nil, err
	}
	return res.Data, res.Err
}

// State reports the current lifecycle state.
func (f *Future) State() TaskState {
	return TaskState(f.state.Load())
}

func (f *Future) setState(s TaskState) {
	f.state.Store(int32(s))
}

// resolve stores res; only the first call has an effect. The terminal state
// is visible before Done closes.
func (f *Future) resolve(res Result) bool {
	terminal := StateSucceeded
	if res.Err != nil {
		terminal = StateFailed
	}
	for {
		cur := TaskState(f.state.Load())
		if cur >= StateSucceeded {
			return false
		}
		if f.state.CompareAndSwap(int32(cur), int32(terminal)) {
			break
		}
	}
	return f.f.Complete(res)
}
