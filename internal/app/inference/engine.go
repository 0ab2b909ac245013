// Package inference owns loaded model instances and dispatches every call
// against them through a per-model FIFO gate onto a per-kind worker pool.
//
// Request lifecycle:
//  1. Admit: validate input and check the slot state (synchronous, never blocks)
//  2. Reserve: take a gate ticket and queue a job, in the same critical section
//  3. Execute: a worker waits for the ticket, then makes the native call
//  4. Resolve: the Pending is resolved, then the gate is handed on
//  5. Record: metrics, trace span and journal entry
package inference

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/saira-network/saira/internal/app/executor"
	"github.com/saira-network/saira/internal/domain"
	"github.com/saira-network/saira/internal/infra/gate"
	"github.com/saira-network/saira/internal/infra/observability"
)

// LaneConfig sizes the worker pool of one model kind.
type LaneConfig struct {
	Workers    int // at least 1
	QueueLimit int // 0 = unbounded
}

// Config controls engine behavior.
type Config struct {
	Lanes   map[domain.ModelKind]LaneConfig
	Journal domain.Journal        // optional
	Tracer  *observability.Tracer // optional
	Logger  zerolog.Logger
}

// DefaultConfig returns one worker per kind with unbounded queues.
func DefaultConfig() Config {
	return Config{
		Lanes: map[domain.ModelKind]LaneConfig{
			domain.ModelLLM: {Workers: 1},
			domain.ModelASR: {Workers: 1},
		},
		Logger: zerolog.Nop(),
	}
}

// Engine is the operation façade over the model handle store.
type Engine struct {
	provider domain.BackendProvider
	journal  domain.Journal
	tracer   *observability.Tracer
	log      zerolog.Logger
	slots    map[domain.ModelKind]*slot
	closed   atomic.Bool
}

// New creates an engine with an empty slot per model kind.
func New(provider domain.BackendProvider, cfg Config) *Engine {
	e := &Engine{
		provider: provider,
		journal:  cfg.Journal,
		tracer:   cfg.Tracer,
		log:      cfg.Logger.With().Str("component", "engine").Logger(),
		slots:    make(map[domain.ModelKind]*slot, len(domain.ModelKinds)),
	}
	for _, kind := range domain.ModelKinds {
		lane := cfg.Lanes[kind]
		exec := executor.New(executor.Config{
			Name:       kind.String(),
			Workers:    lane.Workers,
			QueueLimit: lane.QueueLimit,
			Logger:     cfg.Logger,
		})
		e.slots[kind] = newSlot(kind, exec)
	}
	return e
}

// ─── Snapshots ──────────────────────────────────────────────────────────────

// Models returns a snapshot of every slot in kind order.
func (e *Engine) Models() []domain.SlotInfo {
	out := make([]domain.SlotInfo, 0, len(domain.ModelKinds))
	for _, kind := range domain.ModelKinds {
		out = append(out, e.slots[kind].snapshot())
	}
	return out
}

// Slot returns a snapshot of one slot.
func (e *Engine) Slot(kind domain.ModelKind) (domain.SlotInfo, error) {
	s, err := e.slot(kind)
	if err != nil {
		return domain.SlotInfo{}, err
	}
	return s.snapshot(), nil
}

// Stats returns the worker pool statistics of one kind.
func (e *Engine) Stats(kind domain.ModelKind) (executor.Stats, error) {
	s, err := e.slot(kind)
	if err != nil {
		return executor.Stats{}, err
	}
	return s.exec.Stats(), nil
}

func (e *Engine) slot(kind domain.ModelKind) (*slot, error) {
	s, ok := e.slots[kind]
	if !ok {
		return nil, fmt.Errorf("model kind %v: %w", kind, domain.ErrInvalidInput)
	}
	return s, nil
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// LoadModelAsync starts loading path into the slot of kind. The slot moves
// to LOADING before this returns, so a concurrent second load fails with
// ErrAlreadyLoaded.
func (e *Engine) LoadModelAsync(ctx context.Context, kind domain.ModelKind, path string) (*Pending[domain.SlotInfo], error) {
	s, err := e.slot(kind)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("load %s: empty model path: %w", kind, domain.ErrInvalidInput)
	}
	if e.provider == nil {
		return nil, fmt.Errorf("load %s: %w", kind, domain.ErrProviderMissing)
	}

	p := newPending[domain.SlotInfo](kind, domain.OpLoad)
	span := e.startSpan(ctx, p.id, kind, domain.OpLoad)
	start := time.Now()

	s.mu.Lock()
	if e.closed.Load() {
		s.mu.Unlock()
		return nil, domain.ErrEngineClosed
	}
	if s.state != domain.StateUnloaded {
		st := s.state
		s.mu.Unlock()
		e.reject(kind, "already_loaded")
		return nil, fmt.Errorf("load %s: slot is %s: %w", kind, st, domain.ErrAlreadyLoaded)
	}
	s.setState(domain.StateLoading)
	s.path = path
	tk := s.gate.Enter()
	err = s.exec.Force(func() error {
		return e.runLoad(ctx, s, tk, p, path, span, start)
	})
	if err != nil {
		tk.Release()
		s.clear()
		s.mu.Unlock()
		return nil, e.submitErr(kind, err)
	}
	s.mu.Unlock()
	s.reportDepth()

	e.log.Info().Str("kind", kind.String()).Str("path", path).Str("id", p.id).Msg("loading model")
	return p, nil
}

func (e *Engine) runLoad(ctx context.Context, s *slot, tk *gate.Ticket, p *Pending[domain.SlotInfo], path string, span *observability.Span, start time.Time) error {
	// Lifecycle tickets are never abandoned: the slot is already LOADING.
	_ = tk.Wait(context.Background())

	// Construction does not depend on the caller still waiting.
	buildCtx := context.WithoutCancel(ctx)
	b, err := guard(s.kind, domain.OpLoad, func() (domain.Backend, error) {
		b, err := e.provider.Construct(buildCtx, s.kind, path)
		if err != nil {
			return nil, err
		}
		if err := checkBackend(s.kind, b); err != nil {
			_ = b.Release()
			return nil, err
		}
		return b, nil
	})

	s.mu.Lock()
	if err != nil {
		s.clear()
	} else {
		s.backend = b
		s.loadedAt = time.Now()
		s.dim = 0
		s.setState(domain.StateLoaded)
	}
	info := s.info()
	s.mu.Unlock()

	event := domain.EventLoaded
	if err != nil {
		event = domain.EventLoadFailed
		e.log.Warn().Err(err).Str("kind", s.kind.String()).Str("path", path).Msg("model load failed")
	} else {
		e.log.Info().Str("kind", s.kind.String()).Str("path", path).Dur("took", time.Since(start)).Msg("model loaded")
	}
	// Lifecycle events are journaled before the caller observes the
	// transition, so restore-on-start sees the same order.
	e.recordEvent(s.kind, path, event)

	p.resolve(info, err)
	tk.Release()
	s.reportDepth()

	e.finish(p.id, s.kind, domain.OpLoad, span, start, err)
	return err
}

// LoadModel loads path into the slot of kind and waits for it.
func (e *Engine) LoadModel(ctx context.Context, kind domain.ModelKind, path string) (domain.SlotInfo, error) {
	p, err := e.LoadModelAsync(ctx, kind, path)
	if err != nil {
		return domain.SlotInfo{}, err
	}
	return p.Wait(ctx)
}

// UnloadModelAsync starts releasing the model of kind. New operations are
// refused from this point; operations already admitted run to completion
// before the backend is released.
func (e *Engine) UnloadModelAsync(ctx context.Context, kind domain.ModelKind) (*Pending[domain.SlotInfo], error) {
	s, err := e.slot(kind)
	if err != nil {
		return nil, err
	}

	p := newPending[domain.SlotInfo](kind, domain.OpUnload)
	span := e.startSpan(ctx, p.id, kind, domain.OpUnload)
	start := time.Now()

	s.mu.Lock()
	if e.closed.Load() {
		s.mu.Unlock()
		return nil, domain.ErrEngineClosed
	}
	if s.state != domain.StateLoaded {
		st := s.state
		s.mu.Unlock()
		e.reject(kind, "not_loaded")
		return nil, fmt.Errorf("unload %s: slot is %s: %w", kind, st, domain.ErrNotLoaded)
	}
	s.setState(domain.StateUnloading)
	tk := s.gate.Enter()
	err = s.exec.Force(func() error {
		return e.runUnload(s, tk, p, span, start)
	})
	if err != nil {
		tk.Release()
		s.setState(domain.StateLoaded)
		s.mu.Unlock()
		return nil, e.submitErr(kind, err)
	}
	s.mu.Unlock()
	s.reportDepth()
	return p, nil
}

func (e *Engine) runUnload(s *slot, tk *gate.Ticket, p *Pending[domain.SlotInfo], span *observability.Span, start time.Time) error {
	// Queued behind every admitted operation: once granted, nothing else
	// can reach the backend.
	_ = tk.Wait(context.Background())

	s.mu.Lock()
	b, path := s.backend, s.path
	s.mu.Unlock()

	err := release(s.kind, domain.OpUnload, b)

	s.mu.Lock()
	s.clear()
	info := s.info()
	s.mu.Unlock()

	e.log.Info().Str("kind", s.kind.String()).Str("path", path).Msg("model unloaded")
	e.recordEvent(s.kind, path, domain.EventUnloaded)

	p.resolve(info, err)
	tk.Release()
	s.reportDepth()

	e.finish(p.id, s.kind, domain.OpUnload, span, start, err)
	return err
}

// UnloadModel releases the model of kind and waits for it.
func (e *Engine) UnloadModel(ctx context.Context, kind domain.ModelKind) (domain.SlotInfo, error) {
	p, err := e.UnloadModelAsync(ctx, kind)
	if err != nil {
		return domain.SlotInfo{}, err
	}
	return p.Wait(ctx)
}

// ─── Inference ──────────────────────────────────────────────────────────────

// LLMGenerateAsync queues a text generation on the LLM slot.
func (e *Engine) LLMGenerateAsync(ctx context.Context, prompt string, opts domain.GenerateOptions) (*Pending[string], error) {
	if prompt == "" {
		return nil, fmt.Errorf("generate: empty prompt: %w", domain.ErrInvalidInput)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return dispatch(ctx, e, domain.ModelLLM, domain.OpGenerate, func(ctx context.Context, b domain.Backend) (string, error) {
		return b.(domain.TextBackend).Generate(ctx, prompt, opts)
	})
}

// LLMGenerate generates text and waits for the result.
func (e *Engine) LLMGenerate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	p, err := e.LLMGenerateAsync(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	return p.Wait(ctx)
}

// CreateEmbeddingAsync queues an embedding on the LLM slot. Every vector
// produced by one loaded model has the same length.
func (e *Engine) CreateEmbeddingAsync(ctx context.Context, text string) (*Pending[[]float32], error) {
	if text == "" {
		return nil, fmt.Errorf("embed: empty text: %w", domain.ErrInvalidInput)
	}
	s := e.slots[domain.ModelLLM]
	return dispatch(ctx, e, domain.ModelLLM, domain.OpEmbed, func(ctx context.Context, b domain.Backend) ([]float32, error) {
		vec, err := b.(domain.TextBackend).Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, errors.New("backend returned an empty vector")
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.dim == 0 {
			s.dim = len(vec)
		} else if s.dim != len(vec) {
			return nil, fmt.Errorf("vector length %d, model produces %d", len(vec), s.dim)
		}
		return vec, nil
	})
}

// CreateEmbedding embeds text and waits for the vector.
func (e *Engine) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	p, err := e.CreateEmbeddingAsync(ctx, text)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// ASRTranscribeAsync queues a transcription on the ASR slot. The audio
// buffer must not be modified until the request resolves.
func (e *Engine) ASRTranscribeAsync(ctx context.Context, audio []byte, opts domain.TranscribeOptions) (*Pending[string], error) {
	if err := opts.Validate(audio); err != nil {
		return nil, err
	}
	return dispatch(ctx, e, domain.ModelASR, domain.OpTranscribe, func(ctx context.Context, b domain.Backend) (string, error) {
		return b.(domain.SpeechBackend).Transcribe(ctx, audio, opts)
	})
}

// ASRTranscribe transcribes audio and waits for the text.
func (e *Engine) ASRTranscribe(ctx context.Context, audio []byte, opts domain.TranscribeOptions) (string, error) {
	p, err := e.ASRTranscribeAsync(ctx, audio, opts)
	if err != nil {
		return "", err
	}
	return p.Wait(ctx)
}

// dispatch admits one model operation: it checks the slot is LOADED,
// captures the backend, takes a gate ticket and queues the job, all under
// the slot lock. The caller is never blocked on model work.
func dispatch[T any](ctx context.Context, e *Engine, kind domain.ModelKind, op domain.OperationKind,
	call func(context.Context, domain.Backend) (T, error)) (*Pending[T], error) {

	s := e.slots[kind]
	p := newPending[T](kind, op)
	span := e.startSpan(ctx, p.id, kind, op)
	start := time.Now()

	s.mu.Lock()
	if e.closed.Load() {
		s.mu.Unlock()
		return nil, domain.ErrEngineClosed
	}
	if s.state != domain.StateLoaded {
		st := s.state
		s.mu.Unlock()
		e.reject(kind, "not_loaded")
		return nil, fmt.Errorf("%s %s: slot is %s: %w", kind, op, st, domain.ErrModelNotLoaded)
	}
	backend := s.backend
	tk := s.gate.Enter()
	err := s.exec.Submit(func() error {
		return run(ctx, e, s, tk, p, backend, call, span, start)
	})
	if err != nil {
		tk.Release()
		s.mu.Unlock()
		return nil, e.submitErr(kind, err)
	}
	s.mu.Unlock()
	s.reportDepth()
	return p, nil
}

// run executes one admitted operation on a worker.
func run[T any](ctx context.Context, e *Engine, s *slot, tk *gate.Ticket, p *Pending[T], backend domain.Backend,
	call func(context.Context, domain.Backend) (T, error), span *observability.Span, start time.Time) error {

	var (
		v   T
		err error
	)
	if err = tk.Wait(ctx); err == nil {
		if err = ctx.Err(); err == nil {
			// Once started, a native call runs to completion even if the
			// caller gives up; only values (trace IDs) are carried over.
			callCtx := context.WithoutCancel(ctx)
			v, err = guard(s.kind, p.op, func() (T, error) { return call(callCtx, backend) })
		}
		// Resolve before handing the gate on, so completion order is
		// acquisition order.
		p.resolve(v, err)
		tk.Release()
	} else {
		p.resolve(v, err)
	}
	s.reportDepth()

	if err != nil {
		e.log.Debug().Err(err).Str("kind", s.kind.String()).Str("op", string(p.op)).Str("id", p.id).Msg("operation failed")
	}
	e.finish(p.id, s.kind, p.op, span, start, err)
	return err
}

// ─── Shutdown ───────────────────────────────────────────────────────────────

// Close refuses new requests, drains every worker pool and releases every
// loaded backend. Kinds shut down concurrently. Safe to call more than once.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	var g errgroup.Group
	for _, kind := range domain.ModelKinds {
		s := e.slots[kind]
		g.Go(func() error { return e.shutdownSlot(ctx, s) })
	}
	return g.Wait()
}

func (e *Engine) shutdownSlot(ctx context.Context, s *slot) error {
	drained := make(chan struct{})
	go func() {
		s.exec.Close()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return fmt.Errorf("drain %s: %w", s.kind, ctx.Err())
	}

	// Every admitted job has run; take the gate anyway so a straggling
	// holder can never overlap the release.
	tk := s.gate.Enter()
	if err := tk.Wait(ctx); err != nil {
		return fmt.Errorf("drain %s: %w", s.kind, err)
	}
	defer tk.Release()

	s.mu.Lock()
	b, path := s.backend, s.path
	if b == nil {
		s.mu.Unlock()
		return nil
	}
	s.setState(domain.StateUnloading)
	s.mu.Unlock()

	err := release(s.kind, domain.OpUnload, b)

	s.mu.Lock()
	s.clear()
	s.mu.Unlock()

	e.log.Info().Str("kind", s.kind.String()).Str("path", path).Msg("model released on shutdown")
	e.recordEvent(s.kind, path, domain.EventShutdown)
	return err
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// guard runs a native call, turning errors and panics into BackendError.
// Context errors raised by the backend keep matching under errors.Is.
func guard[T any](kind domain.ModelKind, op domain.OperationKind, fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = &domain.BackendError{Kind: kind, Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err = fn()
	if err != nil {
		var be *domain.BackendError
		if !errors.As(err, &be) {
			err = &domain.BackendError{Kind: kind, Op: op, Err: err}
		}
	}
	return v, err
}

func release(kind domain.ModelKind, op domain.OperationKind, b domain.Backend) error {
	if b == nil {
		return nil
	}
	_, err := guard(kind, op, func() (struct{}, error) { return struct{}{}, b.Release() })
	return err
}

// checkBackend verifies the provider returned the capability set of kind.
func checkBackend(kind domain.ModelKind, b domain.Backend) error {
	switch kind {
	case domain.ModelLLM:
		if _, ok := b.(domain.TextBackend); !ok {
			return fmt.Errorf("provider returned %T, not a text backend", b)
		}
	case domain.ModelASR:
		if _, ok := b.(domain.SpeechBackend); !ok {
			return fmt.Errorf("provider returned %T, not a speech backend", b)
		}
	}
	return nil
}

func (e *Engine) submitErr(kind domain.ModelKind, err error) error {
	if errors.Is(err, executor.ErrClosed) {
		return domain.ErrEngineClosed
	}
	if errors.Is(err, domain.ErrQueueFull) {
		e.reject(kind, "queue_full")
	}
	return err
}

func (e *Engine) reject(kind domain.ModelKind, reason string) {
	observability.Rejections.WithLabelValues(kind.String(), reason).Inc()
}

func (e *Engine) startSpan(ctx context.Context, id string, kind domain.ModelKind, op domain.OperationKind) *observability.Span {
	return e.tracer.StartSpan(ctx, kind.String()+"."+string(op), map[string]string{
		"kind": kind.String(),
		"op":   string(op),
		"id":   id,
	})
}

// finish records metrics, the trace span and the journal entry of one
// completed operation. Runs after the gate has been handed on.
func (e *Engine) finish(id string, kind domain.ModelKind, op domain.OperationKind, span *observability.Span, start time.Time, err error) {
	d := time.Since(start)
	outcome := outcomeOf(err)
	observability.ObserveOperation(kind.String(), string(op), outcome, d)
	e.tracer.EndSpan(span, err)

	if e.journal == nil {
		return
	}
	rec := domain.OperationRecord{
		ID:        id,
		Kind:      kind,
		Op:        op,
		Outcome:   outcome,
		Duration:  d,
		CreatedAt: start,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if jerr := e.journal.RecordOperation(rec); jerr != nil {
		e.log.Warn().Err(jerr).Str("id", id).Msg("journal write failed")
	}
}

func (e *Engine) recordEvent(kind domain.ModelKind, path, event string) {
	if e.journal == nil {
		return
	}
	ev := domain.ModelEvent{Kind: kind, Path: path, Event: event, At: time.Now()}
	if err := e.journal.RecordModelEvent(ev); err != nil {
		e.log.Warn().Err(err).Str("kind", kind.String()).Str("event", event).Msg("journal write failed")
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return domain.OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.OutcomeCanceled
	default:
		return domain.OutcomeError
	}
}
