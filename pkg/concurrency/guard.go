// Package concurrency provides a small ownership guard used to enforce the
// one-peer-link-per-identity policy: a new session may only construct its
// link after the previous one has fully released it.
package concurrency

import (
	"errors"
	"sync"
)

var ErrBusy = errors.New("resource is busy")

type Guard struct {
	mu   sync.Mutex
	held bool
}

func NewGuard() *Guard {
	return &Guard{}
}

// TryAcquire claims the guard, failing with ErrBusy if it is already held.
func (g *Guard) TryAcquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return ErrBusy
	}
	g.held = true
	return nil
}

// Release returns the guard. Releasing an unheld guard is a no-op, which keeps
// idempotent teardown paths simple.
func (g *Guard) Release() {
	g.mu.Lock()
	g.held = false
	g.mu.Unlock()
}

// Execute runs task while holding the guard, for callers whose ownership is
// scoped to one operation.
func (g *Guard) Execute(task func() error) error {
	if err := g.TryAcquire(); err != nil {
		return err
	}
	defer g.Release()
	return task()
}
