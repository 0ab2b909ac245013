package inference

import (
	"sync"
	"time"

	"github.com/saira-network/saira/internal/app/executor"
	"github.com/saira-network/saira/internal/domain"
	"github.com/saira-network/saira/internal/infra/gate"
	"github.com/saira-network/saira/internal/infra/observability"
)

// slot is the handle store entry for one model kind.
//
// mu guards the lifecycle fields. Every admission decision (state check,
// backend capture, gate ticket, job submission) happens in one mu critical
// section, so ticket order equals queue order and a captured backend stays
// valid until its ticket is released. backend != nil iff state == LOADED
// or state == UNLOADING (the handle is still owned while it drains).
type slot struct {
	kind domain.ModelKind
	gate *gate.Gate
	exec *executor.Executor

	mu       sync.Mutex
	state    domain.ModelState
	backend  domain.Backend
	path     string
	loadedAt time.Time
	dim      int // embedding length fixed by the first vector, 0 = unknown
}

func newSlot(kind domain.ModelKind, exec *executor.Executor) *slot {
	s := &slot{
		kind: kind,
		gate: gate.New(),
		exec: exec,
	}
	observability.ModelState.WithLabelValues(kind.String()).Set(float64(domain.StateUnloaded))
	return s
}

// setState records a transition. Caller holds s.mu.
func (s *slot) setState(st domain.ModelState) {
	s.state = st
	observability.ModelState.WithLabelValues(s.kind.String()).Set(float64(st))
}

// clear drops the handle and returns to UNLOADED. Caller holds s.mu.
func (s *slot) clear() {
	s.backend = nil
	s.path = ""
	s.loadedAt = time.Time{}
	s.dim = 0
	s.setState(domain.StateUnloaded)
}

// info snapshots the slot. Caller holds s.mu.
func (s *slot) info() domain.SlotInfo {
	return domain.SlotInfo{
		Kind:         s.kind,
		State:        s.state,
		Path:         s.path,
		LoadedAt:     s.loadedAt,
		Pending:      s.gate.Pending(),
		EmbeddingDim: s.dim,
	}
}

func (s *slot) snapshot() domain.SlotInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info()
}

func (s *slot) reportDepth() {
	observability.QueueDepth.WithLabelValues(s.kind.String()).Set(float64(s.gate.Pending()))
}
