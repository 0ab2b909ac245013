// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ─── Model Kinds ────────────────────────────────────────────────────────────

// ModelKind identifies which class of inference backend an operation targets.
type ModelKind int

const (
	ModelLLM ModelKind = iota // text generation + embeddings
	ModelASR                  // speech recognition
)

// ModelKinds lists every kind in a stable order.
var ModelKinds = []ModelKind{ModelLLM, ModelASR}

// String returns the lowercase kind name used in config, logs and URLs.
func (k ModelKind) String() string {
	switch k {
	case ModelLLM:
		return "llm"
	case ModelASR:
		return "asr"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k ModelKind) Valid() bool {
	return k == ModelLLM || k == ModelASR
}

// ParseModelKind accepts the kind names plus the runtime aliases
// ("llama" for llm, "whisper" for asr).
func ParseModelKind(s string) (ModelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "llm", "llama":
		return ModelLLM, nil
	case "asr", "whisper":
		return ModelASR, nil
	}
	return 0, fmt.Errorf("unknown model kind %q: %w", s, ErrInvalidInput)
}

// MarshalText lets kinds appear as strings in JSON and TOML.
func (k ModelKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *ModelKind) UnmarshalText(b []byte) error {
	parsed, err := ParseModelKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// ModelState is the lifecycle state of a model slot.
//
//	UNLOADED → LOADING → LOADED → UNLOADING → UNLOADED
type ModelState int

const (
	StateUnloaded ModelState = iota
	StateLoading
	StateLoaded
	StateUnloading
)

// String returns the uppercase state name.
func (s ModelState) String() string {
	switch s {
	case StateUnloaded:
		return "UNLOADED"
	case StateLoading:
		return "LOADING"
	case StateLoaded:
		return "LOADED"
	case StateUnloading:
		return "UNLOADING"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s ModelState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SlotInfo is a read-only snapshot of one model slot.
type SlotInfo struct {
	Kind         ModelKind  `json:"kind"`
	State        ModelState `json:"state"`
	Path         string     `json:"path,omitempty"`
	LoadedAt     time.Time  `json:"loaded_at"`
	Pending      int        `json:"pending"`
	EmbeddingDim int        `json:"embedding_dim,omitempty"`
}

// ─── Operations ─────────────────────────────────────────────────────────────

// OperationKind names a façade operation.
type OperationKind string

const (
	OpLoad       OperationKind = "load"
	OpUnload     OperationKind = "unload"
	OpGenerate   OperationKind = "generate"
	OpEmbed      OperationKind = "embed"
	OpTranscribe OperationKind = "transcribe"
)

// GenerateOptions holds parameters for a text generation request.
type GenerateOptions struct {
	System      string  `json:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitempty"`
}

// Validate rejects negative sampling parameters.
func (o GenerateOptions) Validate() error {
	if o.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be >= 0: %w", ErrInvalidInput)
	}
	if o.Temperature < 0 {
		return fmt.Errorf("temperature must be >= 0: %w", ErrInvalidInput)
	}
	if o.TopP < 0 || o.TopP > 1 {
		return fmt.Errorf("top_p must be within [0, 1]: %w", ErrInvalidInput)
	}
	return nil
}

// Audio encodings accepted by transcription.
const (
	EncodingRaw      = ""          // opaque bytes, passed through to the backend
	EncodingPCMS16LE = "pcm_s16le" // signed 16-bit little-endian PCM
	EncodingWAV      = "wav"
)

// TranscribeOptions holds parameters for a speech recognition request.
type TranscribeOptions struct {
	Language   string `json:"language,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// Validate checks the options against the audio payload.
func (o TranscribeOptions) Validate(audio []byte) error {
	if len(audio) == 0 {
		return fmt.Errorf("empty audio buffer: %w", ErrInvalidInput)
	}
	if o.SampleRate < 0 {
		return fmt.Errorf("sample_rate must be >= 0: %w", ErrInvalidInput)
	}
	switch o.Encoding {
	case EncodingRaw, EncodingWAV:
	case EncodingPCMS16LE:
		if len(audio)%2 != 0 {
			return fmt.Errorf("pcm_s16le buffer has odd length %d: %w", len(audio), ErrInvalidInput)
		}
	default:
		return fmt.Errorf("unknown audio encoding %q: %w", o.Encoding, ErrInvalidInput)
	}
	return nil
}

// ─── Journal Records ────────────────────────────────────────────────────────

// Operation outcomes recorded in the journal and metrics.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// OperationRecord is one completed façade operation.
type OperationRecord struct {
	ID        string        `json:"id"`
	Kind      ModelKind     `json:"kind"`
	Op        OperationKind `json:"op"`
	Outcome   string        `json:"outcome"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Model lifecycle events recorded in the journal.
const (
	EventLoaded     = "loaded"
	EventLoadFailed = "load_failed"
	EventUnloaded   = "unloaded"
	EventShutdown   = "shutdown" // released by engine shutdown, eligible for restore
)

// ModelEvent is one lifecycle transition of a model slot.
type ModelEvent struct {
	Kind  ModelKind `json:"kind"`
	Path  string    `json:"path"`
	Event string    `json:"event"`
	At    time.Time `json:"at"`
}
