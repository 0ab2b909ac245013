// Package provider holds the pluggable backend factories, one per model kind.
//
// The inference engine only sees domain.BackendProvider. Swapping the
// registered factory (for example a test double for a native runtime)
// never touches the dispatch layer.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/saira-network/saira/internal/domain"
)

var errNilBackend = errors.New("factory returned a nil backend")

// Registry maps model kinds to backend factories.
// Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	text   domain.TextFactory
	speech domain.SpeechFactory
	names  map[domain.ModelKind]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{names: make(map[domain.ModelKind]string)}
}

// RegisterText installs the factory used for ModelLLM, replacing any
// previous one. name is informational (shown in logs and /models).
func (r *Registry) RegisterText(name string, f domain.TextFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text = f
	r.names[domain.ModelLLM] = name
}

// RegisterSpeech installs the factory used for ModelASR.
func (r *Registry) RegisterSpeech(name string, f domain.SpeechFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech = f
	r.names[domain.ModelASR] = name
}

// Has reports whether a factory is registered for kind.
func (r *Registry) Has(kind domain.ModelKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case domain.ModelLLM:
		return r.text != nil
	case domain.ModelASR:
		return r.speech != nil
	}
	return false
}

// Name returns the registered provider name for kind, or "".
func (r *Registry) Name(kind domain.ModelKind) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[kind]
}

// Construct produces a backend instance for kind from path.
// The returned value is a domain.TextBackend for ModelLLM and a
// domain.SpeechBackend for ModelASR.
func (r *Registry) Construct(ctx context.Context, kind domain.ModelKind, path string) (domain.Backend, error) {
	r.mu.RLock()
	text, speech := r.text, r.speech
	r.mu.RUnlock()

	switch kind {
	case domain.ModelLLM:
		if text == nil {
			return nil, fmt.Errorf("%s: %w", kind, domain.ErrProviderMissing)
		}
		b, err := text(ctx, path)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, errNilBackend
		}
		return b, nil

	case domain.ModelASR:
		if speech == nil {
			return nil, fmt.Errorf("%s: %w", kind, domain.ErrProviderMissing)
		}
		b, err := speech(ctx, path)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, errNilBackend
		}
		return b, nil
	}
	return nil, fmt.Errorf("construct %s: %w", kind, domain.ErrInvalidInput)
}
