// Package gate implements the per-model serialization gate.
//
// A Gate admits at most one holder at a time. Admission order is the order
// in which tickets were issued by Enter, not the order in which holders
// start waiting, so a caller can reserve its place in line on a
// non-blocking control path and block for its turn later on a worker.
//
//	t := g.Enter()          // never blocks, reserves a FIFO position
//	if err := t.Wait(ctx); err != nil { ... }   // blocks until granted
//	defer t.Release()       // hands the gate to the next ticket
package gate

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

type ticketState int

const (
	waiting ticketState = iota
	granted
	released
	abandoned
)

// Gate is a FIFO mutual-exclusion admission gate.
type Gate struct {
	mu      sync.Mutex
	held    bool
	waiters deque.Deque[*Ticket] // may contain abandoned tickets, skipped on handoff
	pending int                  // issued tickets not yet released or abandoned
}

// New creates an open gate.
func New() *Gate {
	return &Gate{}
}

// Ticket is one reserved position in the gate's queue.
type Ticket struct {
	g     *Gate
	ready chan struct{} // closed when granted
	state ticketState   // guarded by g.mu
}

// Enter issues a ticket. If the gate is free the ticket is granted
// immediately, otherwise it queues behind every earlier ticket.
func (g *Gate) Enter() *Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := &Ticket{g: g, ready: make(chan struct{})}
	g.pending++
	if !g.held {
		g.held = true
		t.state = granted
		close(t.ready)
		return t
	}
	g.waiters.PushBack(t)
	return t
}

// Pending returns the number of outstanding tickets, including the holder.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Held reports whether some ticket currently holds the gate.
func (g *Gate) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// handoff passes the gate to the oldest live waiter. Caller holds g.mu.
func (g *Gate) handoff() {
	for g.waiters.Len() > 0 {
		next := g.waiters.PopFront()
		if next.state == abandoned {
			continue
		}
		next.state = granted
		close(next.ready)
		return
	}
	g.held = false
}

// Ready is closed once the ticket holds the gate.
func (t *Ticket) Ready() <-chan struct{} {
	return t.ready
}

// Wait blocks until the ticket is granted or ctx is done. On cancellation
// the ticket gives up its position; if it was granted in the meantime the
// gate is passed on, so a cancelled waiter never leaks the gate.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	default:
	}

	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
		t.Release()
		return ctx.Err()
	}
}

// Release gives the gate to the next ticket. On a ticket that is still
// waiting it abandons the queue position instead. Repeated calls are no-ops.
func (t *Ticket) Release() {
	g := t.g
	g.mu.Lock()
	defer g.mu.Unlock()

	switch t.state {
	case waiting:
		t.state = abandoned
		g.pending--
	case granted:
		t.state = released
		g.pending--
		g.handoff()
	}
}
