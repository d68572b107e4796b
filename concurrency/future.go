package concurrency

import (
	"context"
	"sync"
)

// Future is a single-assignment result slot. The first Complete wins; later
// calls are ignored and reported as false.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

// NewFuture 创建 Future
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Complete stores v and wakes every waiter.
func (f *Future[T]) Complete(v T) bool {
	completed := false
	f.once.Do(func() {
		f.value = v
		close(f.done)
		completed = true
	})
	return completed
}

// Done is closed once the value is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get 获取结果 (阻塞)
func (f *Future[T]) Get() T {
	<-f.done
	return f.value
}

// Await waits for the value or for ctx to end. Giving up does not affect the
// producer; a value completed later is simply not observed by this caller.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
