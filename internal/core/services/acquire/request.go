package acquire

import (
	"context"
	"sync"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
)

// Request is the completion handle of one AcquireOnce call.
// It completes exactly once, with either a fix or an error.
type Request struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu        sync.Mutex
	completed bool
	fix       domain.Fix
	err       error
	callbacks []func(domain.Fix, error)
}

func newRequest(cancel context.CancelFunc) *Request {
	return &Request{
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Done is closed after the result is set and every OnComplete callback ran.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Result blocks until the request completes.
func (r *Request) Result() (domain.Fix, error) {
	<-r.done
	return r.fix, r.err
}

// OnComplete registers fn to run with the result. If the request already
// completed, fn runs immediately on the caller's goroutine.
func (r *Request) OnComplete(fn func(domain.Fix, error)) {
	r.mu.Lock()
	if r.completed {
		fix, err := r.fix, r.err
		r.mu.Unlock()
		fn(fix, err)
		return
	}
	r.callbacks = append(r.callbacks, fn)
	r.mu.Unlock()
}

// Cancel abandons the request; it then completes with domain.ErrCanceled
// unless a result was already produced.
func (r *Request) Cancel() {
	r.cancel()
}

func (r *Request) complete(fix domain.Fix, err error) {
	r.mu.Lock()
	if r.completed {
		r.mu.Unlock()
		return
	}
	r.completed = true
	r.fix, r.err = fix, err
	callbacks := r.callbacks
	r.callbacks = nil
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(fix, err)
	}
	close(r.done)
}
