// Package fake provides in-process model backends and an audio device that
// need no native runtime. They back the "fake" provider in config and the
// test suites of the dispatch layer.
//
// The backends detect reentrant use: a call that starts while another call
// on the same instance is still running is counted as an overlap.
package fake

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saira-network/saira/internal/domain"
	"github.com/saira-network/saira/internal/infra/provider"
)

// ErrDoubleRelease is returned by Release on an already released instance.
var ErrDoubleRelease = errors.New("fake backend released twice")

// Config controls fake backend behavior.
type Config struct {
	EmbeddingDim int           // vector length (default 4)
	Delay        time.Duration // simulated native call latency
	ConstructErr error         // if set, every construction fails with it
}

// DefaultConfig returns a zero-latency 4-dimensional model.
func DefaultConfig() Config {
	return Config{EmbeddingDim: 4}
}

// instance carries the bookkeeping shared by both fakes.
type instance struct {
	path     string
	delay    time.Duration
	inflight atomic.Int32
	overlaps atomic.Int64
	calls    atomic.Int64
	released atomic.Bool
}

func (in *instance) enter(ctx context.Context) (func(), error) {
	if in.inflight.Add(1) > 1 {
		in.overlaps.Add(1)
	}
	in.calls.Add(1)
	done := func() { in.inflight.Add(-1) }
	if in.released.Load() {
		done()
		return nil, fmt.Errorf("use after release of %s", in.path)
	}
	if in.delay > 0 {
		select {
		case <-time.After(in.delay):
		case <-ctx.Done():
			done()
			return nil, ctx.Err()
		}
	}
	return done, nil
}

// Path returns the model path the instance was constructed from.
func (in *instance) Path() string { return in.path }

// Overlaps returns how many calls started while another was running.
func (in *instance) Overlaps() int64 { return in.overlaps.Load() }

// Calls returns the number of native calls made.
func (in *instance) Calls() int64 { return in.calls.Load() }

// Released reports whether Release has been called.
func (in *instance) Released() bool { return in.released.Load() }

// Release frees the instance.
func (in *instance) Release() error {
	if !in.released.CompareAndSwap(false, true) {
		return ErrDoubleRelease
	}
	return nil
}

// ─── Text ───────────────────────────────────────────────────────────────────

// Text is a fake LLM.
type Text struct {
	instance
	dim int
}

// Generate echoes the prompt.
func (t *Text) Generate(ctx context.Context, prompt string, _ domain.GenerateOptions) (string, error) {
	done, err := t.enter(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	return "Mock generated text for: " + prompt, nil
}

// Embed returns a deterministic unit-range vector derived from text.
func (t *Text) Embed(ctx context.Context, text string) ([]float32, error) {
	done, err := t.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, t.dim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(seed>>40) / float32(1<<24)
	}
	return vec, nil
}

// ─── Speech ─────────────────────────────────────────────────────────────────

// Speech is a fake ASR model.
type Speech struct {
	instance
}

// Transcribe describes the audio instead of recognizing it.
func (s *Speech) Transcribe(ctx context.Context, audio []byte, _ domain.TranscribeOptions) (string, error) {
	done, err := s.enter(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	return fmt.Sprintf("Mock transcription for audio from %s (%d bytes)", s.path, len(audio)), nil
}

// ─── Factories ──────────────────────────────────────────────────────────────

// Backends constructs fakes and remembers every instance it built.
type Backends struct {
	cfg Config

	mu      sync.Mutex
	texts   []*Text
	speechs []*Speech
}

// NewBackends creates a fake factory set.
func NewBackends(cfg Config) *Backends {
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = DefaultConfig().EmbeddingDim
	}
	return &Backends{cfg: cfg}
}

// Register installs both factories into reg.
func (b *Backends) Register(reg *provider.Registry) {
	reg.RegisterText("fake", b.NewText)
	reg.RegisterSpeech("fake", b.NewSpeech)
}

// NewText is a domain.TextFactory.
func (b *Backends) NewText(_ context.Context, path string) (domain.TextBackend, error) {
	if b.cfg.ConstructErr != nil {
		return nil, b.cfg.ConstructErr
	}
	t := &Text{instance: instance{path: path, delay: b.cfg.Delay}, dim: b.cfg.EmbeddingDim}
	b.mu.Lock()
	b.texts = append(b.texts, t)
	b.mu.Unlock()
	return t, nil
}

// NewSpeech is a domain.SpeechFactory.
func (b *Backends) NewSpeech(_ context.Context, path string) (domain.SpeechBackend, error) {
	if b.cfg.ConstructErr != nil {
		return nil, b.cfg.ConstructErr
	}
	s := &Speech{instance: instance{path: path, delay: b.cfg.Delay}}
	b.mu.Lock()
	b.speechs = append(b.speechs, s)
	b.mu.Unlock()
	return s, nil
}

// Texts returns every text instance built so far.
func (b *Backends) Texts() []*Text {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Text(nil), b.texts...)
}

// Speeches returns every speech instance built so far.
func (b *Backends) Speeches() []*Speech {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Speech(nil), b.speechs...)
}
