package fixturetypes

import (
	"context"
	"sync"
)

// Rebuild is a one-shot future resolved when a rebuild finishes.
type Rebuild struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewRebuild returns an unresolved Rebuild.
func NewRebuild() *Rebuild {
	return &Rebuild{done: make(chan struct{})}
}

// CompletedRebuild returns a Rebuild already resolved with err.
func CompletedRebuild(err error) *Rebuild {
	r := NewRebuild()
	r.Complete(err)
	return r
}

// Complete resolves the rebuild. Only the first call has any effect.
func (r *Rebuild) Complete(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed once the rebuild has finished.
func (r *Rebuild) Done() <-chan struct{} {
	return r.done
}

// Err returns the rebuild error. It is only meaningful after Done is closed.
func (r *Rebuild) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the rebuild finishes or ctx is done.
func (r *Rebuild) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
