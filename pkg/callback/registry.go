// Package callback aggregates many handlers behind a single named event.
//
// A Registry owns the handlers for one event and exposes a stable dispatch
// function the upload engine calls whenever that event fires. Two execution
// modes exist, chosen once from the event name:
//
//   - Sync: handlers run in registration order; the first one returning
//     exactly false stops the run and false becomes the outcome. Otherwise
//     the outcome is whatever the last handler returned.
//   - Chained: handlers run in REVERSE registration order, one at a time,
//     waiting on any *Promise (or Awaiter) they return. Record results are
//     shallow-merged into an accumulated result. A false value or a failed
//     promise rejects the whole chain. The dispatch returns one *Promise.
//
// The reversed chained order is intentional: the handler attached most
// recently (usually the application) sees and shapes the result before the
// earliest one (usually the engine's own default) finalizes it.
//
//	r := callback.New(callback.OnSubmit, nil)
//	h := r.Add(func(args ...any) any {
//	    return callback.Record{"bucket": "avatars"}
//	})
//	defer r.Remove(h)
//
//	p := r.Dispatch()(id, name).(*callback.Promise)
//	params, err := p.Await(ctx)
package callback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shashiranjanraj/upbridge/pkg/logger"
	"github.com/shashiranjanraj/upbridge/pkg/metrics"
)

// ErrRejected is the failure carried by a chain that a handler stopped with
// false, or by a promise rejected without a reason.
var ErrRejected = errors.New("callback: rejected")

// Handler is a function invoked with the event's positional arguments.
//
// Return false to stop (sync) or reject (chained). In chained mode a handler
// may also return a *Promise or any Awaiter to suspend the chain until it
// settles.
type Handler func(args ...any) any

// DispatchFunc is the stable function handed to the host engine.
type DispatchFunc func(args ...any) any

// Mode selects how a registry runs its handlers.
type Mode int

const (
	// ModeSync runs handlers in order and short-circuits on false.
	ModeSync Mode = iota
	// ModeChained runs handlers newest-first as a sequential async chain.
	ModeChained
)

func (m Mode) String() string {
	if m == ModeChained {
		return "chained"
	}
	return "sync"
}

// Classifier maps an event name to its execution mode.
type Classifier func(name string) Mode

// Handle is the identity of one registration. Go funcs are not comparable,
// so removal goes through the handle returned by Add.
type Handle struct {
	fn Handler
}

// Registry holds the ordered handlers for one event name.
type Registry struct {
	name     string
	mode     Mode
	dispatch DispatchFunc

	mu       sync.RWMutex
	handlers []*Handle
}

// New creates a registry for name. A nil classify falls back to Classify,
// the built-in Fine Uploader catalogue.
func New(name string, classify Classifier) *Registry {
	if classify == nil {
		classify = Classify
	}
	r := &Registry{name: name, mode: classify(name)}
	if r.mode == ModeChained {
		r.dispatch = func(args ...any) any { return r.Chain(args...) }
	} else {
		r.dispatch = r.Fire
	}
	return r
}

// Name returns the event name.
func (r *Registry) Name() string { return r.name }

// Mode returns the execution mode fixed at construction.
func (r *Registry) Mode() Mode { return r.mode }

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Add appends h and returns its handle. Registering the same function twice
// yields two independent entries. A nil handler panics.
func (r *Registry) Add(h Handler) *Handle {
	if h == nil {
		panic(fmt.Sprintf("callback: nil handler registered for %q", r.name))
	}
	hd := &Handle{fn: h}
	r.mu.Lock()
	r.handlers = append(r.handlers, hd)
	r.mu.Unlock()
	return hd
}

// Remove deletes the first entry with the identity of h. Unknown or nil
// handles are ignored. The order of the remaining entries is preserved.
func (r *Registry) Remove(h *Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.handlers {
		if cur == h {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return
		}
	}
}

// Dispatch returns the stable dispatch function. It always reflects the
// handlers registered at the moment it is invoked.
func (r *Registry) Dispatch() DispatchFunc { return r.dispatch }

func (r *Registry) snapshot() []*Handle {
	r.mu.RLock()
	hs := make([]*Handle, len(r.handlers))
	copy(hs, r.handlers)
	r.mu.RUnlock()
	return hs
}

// ─── Sync mode ───────────────────────────────────────────────────────────────

// Fire invokes every handler in registration order and returns the last
// return value, or false as soon as a handler returns false.
func (r *Registry) Fire(args ...any) any {
	start := time.Now()
	outcome := "completed"

	var out any
	for _, h := range r.snapshot() {
		out = h.fn(args...)
		if isFalse(out) {
			outcome = "stopped"
			break
		}
	}

	metrics.RecordDispatch(r.name, r.mode.String(), outcome, start)
	return out
}

// ─── Chained mode ────────────────────────────────────────────────────────────

// Chain runs the handlers newest-first on a dedicated goroutine and returns
// a promise for the merged result. With no handlers the promise is already
// resolved with nil.
//
// No deadline is applied: a handler whose promise never settles stalls this
// chain. Callers bound their own wait with Promise.Await(ctx).
func (r *Registry) Chain(args ...any) *Promise {
	hs := r.snapshot()
	if len(hs) == 0 {
		metrics.RecordDispatch(r.name, r.mode.String(), "resolved", time.Now())
		return Resolved(nil)
	}

	p := NewPromise()
	go func() {
		start := time.Now()
		result, err := r.runChain(hs, args)
		if err != nil {
			outcome := "failed"
			if errors.Is(err, ErrRejected) {
				outcome = "rejected"
			}
			logger.Debug("callback: chain rejected", "event", r.name, "error", err)
			metrics.RecordDispatch(r.name, r.mode.String(), outcome, start)
			p.Reject(err)
			return
		}
		metrics.RecordDispatch(r.name, r.mode.String(), "resolved", start)
		p.Resolve(result)
	}()
	return p
}

func (r *Registry) runChain(hs []*Handle, args []any) (acc any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			acc, err = nil, fmt.Errorf("callback: %s handler panicked: %v", r.name, rec)
		}
	}()

	for i := len(hs) - 1; i >= 0; i-- {
		next, err := settle(hs[i].fn(args...))
		if err != nil {
			return nil, err
		}
		if isFalse(next) {
			return nil, ErrRejected
		}
		acc = merge(acc, next)
	}
	return acc, nil
}

func isFalse(v any) bool {
	b, ok := v.(bool)
	return ok && !b
}
