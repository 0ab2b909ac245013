package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Backend is an opaque, loaded model instance owned by exactly one model slot.
// Implementations are NOT required to be safe for concurrent use: the
// dispatch layer never issues overlapping calls to the same instance.
type Backend interface {
	// Release frees the native resources. Called once, after every
	// in-flight operation on the instance has finished.
	Release() error
}

// TextBackend is a loaded text-generation model.
type TextBackend interface {
	Backend

	// Generate produces text for the given prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Embed returns a fixed-length vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SpeechBackend is a loaded speech-recognition model.
type SpeechBackend interface {
	Backend

	// Transcribe converts audio bytes to text.
	Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (string, error)
}

// TextFactory constructs a text backend from a model path.
type TextFactory func(ctx context.Context, path string) (TextBackend, error)

// SpeechFactory constructs a speech backend from a model path.
type SpeechFactory func(ctx context.Context, path string) (SpeechBackend, error)

// BackendProvider produces backend instances per model kind. The engine
// depends only on this capability, never on a concrete construction path.
type BackendProvider interface {
	Construct(ctx context.Context, kind ModelKind, path string) (Backend, error)
}

// Journal persists completed operations and lifecycle transitions.
type Journal interface {
	RecordOperation(rec OperationRecord) error
	RecordModelEvent(ev ModelEvent) error
}

// AudioDevice abstracts the platform audio layer (enumeration, capture, playback).
type AudioDevice interface {
	// Devices lists input and output devices.
	Devices(ctx context.Context) ([]DeviceInfo, error)

	// BeginCapture starts streaming raw audio chunks to onBuffer until the
	// returned StopFunc is called. StopFunc blocks until the device has
	// stopped invoking onBuffer.
	BeginCapture(opts CaptureOptions, onBuffer BufferFunc) (StopFunc, error)

	// Render starts playback of a sample buffer and returns without
	// waiting for it to finish.
	Render(samples []int16, opts PlaybackOptions) error
}
