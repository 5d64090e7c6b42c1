package query

import (
	"context"
	"sync"
)

type MutationStatus string

const (
	MutationIdle    MutationStatus = "idle"
	MutationPending MutationStatus = "pending"
	MutationSuccess MutationStatus = "success"
	MutationError   MutationStatus = "error"
)

type MutationOptions[P, R any] struct {
	// OnSuccess runs before Run returns, so its effects happen-before the caller's next read.
	OnSuccess func(ctx context.Context, params P, result R)
	OnError   func(ctx context.Context, params P, err error)
}

// Mutation tracks one update call: idle, pending, then success or error.
// A failed run leaves the cache untouched.
type Mutation[P, R any] struct {
	fn   func(ctx context.Context, params P) (R, error)
	opts MutationOptions[P, R]

	mu     sync.Mutex
	status MutationStatus
	data   R
	err    error
}

func NewMutation[P, R any](fn func(ctx context.Context, params P) (R, error), opts MutationOptions[P, R]) *Mutation[P, R] {
	return &Mutation[P, R]{
		fn:     fn,
		opts:   opts,
		status: MutationIdle,
	}
}

func (m *Mutation[P, R]) Run(ctx context.Context, params P) (R, error) {
	var zero R

	m.mu.Lock()
	m.status = MutationPending
	m.err = nil
	m.mu.Unlock()

	result, err := m.fn(ctx, params)
	if err != nil {
		m.mu.Lock()
		m.status = MutationError
		m.data = zero
		m.err = err
		m.mu.Unlock()
		if m.opts.OnError != nil {
			m.opts.OnError(ctx, params, err)
		}
		return zero, err
	}

	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(ctx, params, result)
	}

	m.mu.Lock()
	m.status = MutationSuccess
	m.data = result
	m.mu.Unlock()
	return result, nil
}

func (m *Mutation[P, R]) Status() MutationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Mutation[P, R]) Data() R {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

func (m *Mutation[P, R]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Reset returns the mutation to idle.
func (m *Mutation[P, R]) Reset() {
	var zero R
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = MutationIdle
	m.data = zero
	m.err = nil
}
