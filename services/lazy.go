package services

import (
	"context"
	"sync"
)

// InitState is the lifecycle of a Lazy handle.
type InitState int

const (
	Uninitialized InitState = iota
	Ready
)

// Lazy is a process-wide handle constructed on first use. Construction runs
// at most once at a time; a failed construction leaves the handle
// Uninitialized so the next Get retries.
type Lazy[T any] struct {
	mu    sync.Mutex
	state InitState
	value T
	build func(ctx context.Context) (T, error)
}

func NewLazy[T any](build func(ctx context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{build: build}
}

// Get returns the handle, building it if needed.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Ready {
		return l.value, nil
	}
	v, err := l.build(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	l.value, l.state = v, Ready
	return v, nil
}

func (l *Lazy[T]) State() InitState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Peek returns the handle only if it has already been built.
func (l *Lazy[T]) Peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.state == Ready
}
