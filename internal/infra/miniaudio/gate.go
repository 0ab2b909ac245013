package miniaudio

import (
	"sync"

	"github.com/saira-network/saira/internal/domain"
)

// gate admits native device setup until it is shut. Shutting waits for every
// setup already admitted, so the shared context is never freed under one.
type gate struct {
	mu     sync.Mutex
	closed bool
	active sync.WaitGroup
}

// enter admits one setup. The returned func must be called once it is done.
func (g *gate) enter() (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, domain.ErrAudioClosed
	}
	g.active.Add(1)
	return g.active.Done, nil
}

// shut refuses new setups and waits for running ones. It reports false when
// the gate was already shut.
func (g *gate) shut() bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.closed = true
	g.mu.Unlock()
	g.active.Wait()
	return true
}
