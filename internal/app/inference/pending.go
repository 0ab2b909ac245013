package inference

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/saira-network/saira/internal/domain"
)

// Pending is the completion handle of one accepted request. It is resolved
// exactly once, from the worker that executed the call.
type Pending[T any] struct {
	id   string
	kind domain.ModelKind
	op   domain.OperationKind

	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newPending[T any](kind domain.ModelKind, op domain.OperationKind) *Pending[T] {
	return &Pending[T]{
		id:   uuid.NewString(),
		kind: kind,
		op:   op,
		done: make(chan struct{}),
	}
}

// ID returns the request ID (also used as the journal record ID).
func (p *Pending[T]) ID() string { return p.id }

// Kind returns the model kind the request targets.
func (p *Pending[T]) Kind() domain.ModelKind { return p.kind }

// Op returns the operation kind.
func (p *Pending[T]) Op() domain.OperationKind { return p.op }

// Done is closed once the result is available.
func (p *Pending[T]) Done() <-chan struct{} { return p.done }

// Wait blocks until the request resolves or ctx is done. Giving up on the
// wait does not cancel a native call that is already running.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// resolve stores the result. Only the first call has any effect.
func (p *Pending[T]) resolve(v T, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.val, p.err = v, err
		close(p.done)
		resolved = true
	})
	return resolved
}
