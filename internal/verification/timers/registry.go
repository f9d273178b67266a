// Package timers tracks one cancellable challenge timer per member.
package timers

import (
	"errors"
	"sync"
	"time"

	"gatekeeper/internal/verification/models"
)

var ErrAlreadyRegistered = errors.New("timer already registered")

// Timer is the part of *time.Timer the registry needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once adapted
// with Real.
type AfterFunc func(d time.Duration, f func()) Timer

// Real schedules through the runtime timer wheel.
func Real(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// FireFunc receives the pending challenge of an expired timer.
type FireFunc func(models.PendingChallenge)

type entry struct {
	pending models.PendingChallenge
	timer   Timer
}

// Registry maps keys to pending challenges. A key has at most one entry. An
// entry is removed exactly once, either by Cancel or by its own firing, and
// only the remover of a fired entry runs its callback.
type Registry struct {
	mu        sync.Mutex
	entries   map[models.Key]*entry
	afterFunc AfterFunc
}

func New(afterFunc AfterFunc) *Registry {
	if afterFunc == nil {
		afterFunc = Real
	}
	return &Registry{
		entries:   make(map[models.Key]*entry),
		afterFunc: afterFunc,
	}
}

// Register schedules fire for key after delay.
func (r *Registry) Register(key models.Key, delay time.Duration, pending models.PendingChallenge, fire FireFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		return ErrAlreadyRegistered
	}
	e := &entry{pending: pending}
	r.entries[key] = e
	e.timer = r.afterFunc(delay, func() {
		if r.take(key, e) {
			fire(e.pending)
		}
	})
	return nil
}

// take removes e if it is still the registered entry for key.
func (r *Registry) take(key models.Key, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[key] != e {
		return false
	}
	delete(r.entries, key)
	return true
}

// Cancel stops the timer for key. It reports whether an entry was removed;
// cancelling an absent key is a no-op.
func (r *Registry) Cancel(key models.Key) (models.PendingChallenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return models.PendingChallenge{}, false
	}
	delete(r.entries, key)
	if e.timer != nil {
		e.timer.Stop()
	}
	return e.pending, true
}

// Pending returns the challenge registered for key.
func (r *Registry) Pending(key models.Key) (models.PendingChallenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return models.PendingChallenge{}, false
	}
	return e.pending, true
}

func (r *Registry) Has(key models.Key) bool {
	_, ok := r.Pending(key)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// StopAll cancels every timer and returns the dropped challenges.
func (r *Registry) StopAll() []models.PendingChallenge {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := make([]models.PendingChallenge, 0, len(r.entries))
	for key, e := range r.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		dropped = append(dropped, e.pending)
		delete(r.entries, key)
	}
	return dropped
}
