package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

// ─── ModelKind Tests ────────────────────────────────────────────────────────

func TestParseModelKind(t *testing.T) {
	tests := []struct {
		in      string
		want    ModelKind
		wantErr bool
	}{
		{in: "llm", want: ModelLLM},
		{in: "llama", want: ModelLLM},
		{in: " LLM ", want: ModelLLM},
		{in: "asr", want: ModelASR},
		{in: "whisper", want: ModelASR},
		{in: "tts", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseModelKind(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("ParseModelKind(%q) error = %v, want ErrInvalidInput", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseModelKind(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseModelKind(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestModelKind_JSON(t *testing.T) {
	data, err := json.Marshal(SlotInfo{Kind: ModelASR, State: StateLoaded})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["kind"] != "asr" {
		t.Errorf("kind = %v, want asr", got["kind"])
	}
	if got["state"] != "LOADED" {
		t.Errorf("state = %v, want LOADED", got["state"])
	}

	var k ModelKind
	if err := k.UnmarshalText([]byte("whisper")); err != nil || k != ModelASR {
		t.Errorf("UnmarshalText(whisper) = %v, %v", k, err)
	}
}

func TestModelKind_Valid(t *testing.T) {
	for _, k := range ModelKinds {
		if !k.Valid() {
			t.Errorf("%v should be valid", k)
		}
	}
	if ModelKind(7).Valid() {
		t.Error("kind 7 should be invalid")
	}
}

// ─── Validation Tests ───────────────────────────────────────────────────────

func TestGenerateOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    GenerateOptions
		wantErr bool
	}{
		{"zero value", GenerateOptions{}, false},
		{"typical", GenerateOptions{MaxTokens: 50, Temperature: 0.7, TopP: 0.9}, false},
		{"negative max tokens", GenerateOptions{MaxTokens: -1}, true},
		{"negative temperature", GenerateOptions{Temperature: -0.1}, true},
		{"top_p above one", GenerateOptions{TopP: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error %v should wrap ErrInvalidInput", err)
			}
		})
	}
}

func TestTranscribeOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    TranscribeOptions
		audio   []byte
		wantErr bool
	}{
		{"raw bytes", TranscribeOptions{}, []byte{1, 2, 3}, false},
		{"empty audio", TranscribeOptions{}, nil, true},
		{"pcm even", TranscribeOptions{Encoding: EncodingPCMS16LE}, []byte{1, 2, 3, 4}, false},
		{"pcm odd", TranscribeOptions{Encoding: EncodingPCMS16LE}, []byte{1, 2, 3}, true},
		{"negative rate", TranscribeOptions{SampleRate: -1}, []byte{1, 2}, true},
		{"unknown encoding", TranscribeOptions{Encoding: "mp3"}, []byte{1, 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate(tt.audio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCaptureOptions_WithDefaults(t *testing.T) {
	got := CaptureOptions{}.WithDefaults()
	if got.SampleRate != 16000 || got.Channels != 1 {
		t.Errorf("WithDefaults() = %+v, want 16000 Hz mono", got)
	}
	if err := (CaptureOptions{SampleRate: -1}).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Validate() = %v, want ErrInvalidInput", err)
	}
}

// ─── Error Tests ────────────────────────────────────────────────────────────

func TestErrModelNotLoaded_IsNotLoaded(t *testing.T) {
	if !errors.Is(ErrModelNotLoaded, ErrNotLoaded) {
		t.Error("ErrModelNotLoaded should match ErrNotLoaded")
	}
}

func TestBackendError_Unwrap(t *testing.T) {
	native := errors.New("decoder state corrupted")

	callErr := &BackendError{Kind: ModelLLM, Op: OpGenerate, Err: native}
	if !errors.Is(callErr, ErrBackendCallFailed) {
		t.Error("call error should match ErrBackendCallFailed")
	}
	if !errors.Is(callErr, native) {
		t.Error("call error should match native error")
	}
	if errors.Is(callErr, ErrBackendConstructionFailed) {
		t.Error("call error should not match ErrBackendConstructionFailed")
	}

	loadErr := &BackendError{Kind: ModelASR, Op: OpLoad, Err: native}
	if !errors.Is(loadErr, ErrBackendConstructionFailed) {
		t.Error("load error should match ErrBackendConstructionFailed")
	}

	var be *BackendError
	if !errors.As(error(loadErr), &be) || be.Kind != ModelASR {
		t.Errorf("errors.As() = %v", be)
	}
}
