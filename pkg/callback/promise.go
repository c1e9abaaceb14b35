package callback

import (
	"context"
	"sync"
)

// Awaiter is any pending value a chained handler can return. *Promise is
// checked first; other types only need Await.
type Awaiter interface {
	Await(ctx context.Context) (any, error)
}

// Promise is a value that settles exactly once, either resolved with a value
// or rejected with an error.
type Promise struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewPromise returns an unsettled promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolved returns a promise already resolved with v.
func Resolved(v any) *Promise {
	p := NewPromise()
	p.Resolve(v)
	return p
}

// Rejected returns a promise already rejected with err.
func Rejected(err error) *Promise {
	p := NewPromise()
	p.Reject(err)
	return p
}

// Go runs fn on a new goroutine and settles the returned promise with its
// result. Handy for handlers that do I/O:
//
//	return callback.Go(func() (any, error) { return lookupQuota(ctx, id) })
func Go(fn func() (any, error)) *Promise {
	p := NewPromise()
	go func() {
		v, err := fn()
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(v)
	}()
	return p
}

// Resolve settles p with v. It reports false if p was already settled.
func (p *Promise) Resolve(v any) bool {
	settled := false
	p.once.Do(func() {
		p.value = v
		close(p.done)
		settled = true
	})
	return settled
}

// Reject settles p with err; a nil err becomes ErrRejected. It reports false
// if p was already settled.
func (p *Promise) Reject(err error) bool {
	if err == nil {
		err = ErrRejected
	}
	settled := false
	p.once.Do(func() {
		p.err = err
		close(p.done)
		settled = true
	})
	return settled
}

// Done is closed once p settles.
func (p *Promise) Done() <-chan struct{} { return p.done }

// Settled reports whether p has settled.
func (p *Promise) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Await blocks until p settles or ctx is done. Cancelling ctx stops the wait
// only; it does not settle p.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then calls onResolve or onReject on a new goroutine once p settles.
// Either callback may be nil.
func (p *Promise) Then(onResolve func(any), onReject func(error)) {
	go func() {
		<-p.done
		if p.err != nil {
			if onReject != nil {
				onReject(p.err)
			}
			return
		}
		if onResolve != nil {
			onResolve(p.value)
		}
	}()
}

// settle waits for v when it is pending and returns the settled value.
// Plain values pass through unchanged.
func settle(v any) (any, error) {
	switch pv := v.(type) {
	case *Promise:
		if pv == nil {
			return nil, nil
		}
		<-pv.done
		return pv.value, pv.err
	case Awaiter:
		return pv.Await(context.Background())
	default:
		return v, nil
	}
}
