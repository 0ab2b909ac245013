package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/saira-network/saira/internal/app/audio"
	"github.com/saira-network/saira/internal/app/inference"
	"github.com/saira-network/saira/internal/domain"
	"github.com/saira-network/saira/internal/infra/fake"
	"github.com/saira-network/saira/internal/infra/observability"
	"github.com/saira-network/saira/internal/infra/provider"
)

type testEnv struct {
	srv    *httptest.Server
	engine *inference.Engine
	dev    *fake.Audio
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := provider.New()
	fake.NewBackends(fake.DefaultConfig()).Register(reg)

	tracer := observability.NewTracer(observability.DefaultTracerConfig())
	cfg := inference.DefaultConfig()
	cfg.Tracer = tracer
	engine := inference.New(reg, cfg)
	t.Cleanup(func() { engine.Close(context.Background()) })

	dev := fake.NewAudio(fake.AudioConfig{})
	bridge := audio.NewBridge(dev, audio.DefaultConfig())
	t.Cleanup(bridge.Close)

	s := NewServer(engine, bridge)
	s.SetTracer(tracer)
	s.EnableMetrics()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, engine: engine, dev: dev}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp, out
}

// ─── Health ─────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" || body["service"] != "Saira Backend" {
		t.Errorf("body = %v", body)
	}
	if resp.Header.Get(TraceHeader) == "" {
		t.Error("response should carry a trace ID")
	}
}

func TestTraceHeaderPropagated(t *testing.T) {
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/v1/health", nil)
	req.Header.Set(TraceHeader, "trace-abc")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(TraceHeader); got != "trace-abc" {
		t.Errorf("%s = %q, want trace-abc", TraceHeader, got)
	}
}

// ─── Lifecycle & Inference ──────────────────────────────────────────────────

func TestModelLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/generate", map[string]any{"prompt": "hi"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("generate before load: status = %d, want 409 (%v)", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/models/llama/load", map[string]string{"path": "/models/tiny.gguf"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load: status = %d (%v)", resp.StatusCode, body)
	}
	if body["state"] != "LOADED" || body["kind"] != "llm" {
		t.Errorf("load body = %v", body)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/v1/models/llm/load", map[string]string{"path": "/models/other.gguf"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second load: status = %d, want 409", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/generate", map[string]any{"prompt": "hi", "max_tokens": 50})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate: status = %d (%v)", resp.StatusCode, body)
	}
	if body["text"] != "Mock generated text for: hi" {
		t.Errorf("text = %v", body["text"])
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/embeddings", map[string]any{"text": "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("embeddings: status = %d (%v)", resp.StatusCode, body)
	}
	if body["dimension"] != float64(4) {
		t.Errorf("dimension = %v, want 4", body["dimension"])
	}

	resp, body = env.do(t, http.MethodPost, "/api/v1/models/llm/unload", nil)
	if resp.StatusCode != http.StatusOK || body["state"] != "UNLOADED" {
		t.Fatalf("unload: status = %d (%v)", resp.StatusCode, body)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/v1/models/llm/unload", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second unload: status = %d, want 409", resp.StatusCode)
	}
}

func TestTranscribeOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.LoadModel(context.Background(), domain.ModelASR, "/models/base.en.bin"); err != nil {
		t.Fatal(err)
	}

	// []byte marshals as base64.
	resp, body := env.do(t, http.MethodPost, "/api/v1/transcribe", map[string]any{
		"audio":    []byte{0, 0, 1, 0},
		"encoding": "pcm_s16le",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d (%v)", resp.StatusCode, body)
	}
	want := "Mock transcription for audio from /models/base.en.bin (4 bytes)"
	if body["text"] != want {
		t.Errorf("text = %v, want %q", body["text"], want)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/v1/transcribe", map[string]any{
		"audio":    []byte{0, 0, 1},
		"encoding": "pcm_s16le",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("odd pcm: status = %d, want 400", resp.StatusCode)
	}
}

func TestBadRequests(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown kind", http.MethodPost, "/api/v1/models/tts/load", map[string]string{"path": "x"}, http.StatusBadRequest},
		{"empty path", http.MethodPost, "/api/v1/models/llm/load", map[string]string{"path": ""}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/generate", map[string]any{"promt": "typo"}, http.StatusBadRequest},
		{"get unknown kind", http.MethodGet, "/api/v1/models/tts", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (%v)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestListModels(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/v1/models", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	models, ok := body["models"].([]any)
	if !ok || len(models) != 2 {
		t.Fatalf("models = %v, want 2 slots", body["models"])
	}
	first := models[0].(map[string]any)
	if first["kind"] != "llm" || first["state"] != "UNLOADED" {
		t.Errorf("first slot = %v", first)
	}
}

// ─── Audio ──────────────────────────────────────────────────────────────────

func TestAudioDevicesGrouped(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/v1/audio/devices", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	inputs := body["inputs"].([]any)
	outputs := body["outputs"].([]any)
	if len(inputs) != 1 || len(outputs) != 1 {
		t.Fatalf("inputs=%d outputs=%d, want 1 each", len(inputs), len(outputs))
	}
	if inputs[0].(map[string]any)["is_default"] != true {
		t.Error("input should be marked default")
	}
}

func TestPlayAudio(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/v1/audio/play", map[string]any{"samples": []int16{0, 100, -100}})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if played := env.dev.Played(); len(played) != 1 || len(played[0]) != 3 {
		t.Errorf("Played() = %v", played)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/v1/audio/play", map[string]any{"samples": []int16{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty buffer: status = %d, want 400", resp.StatusCode)
	}
}

func TestAudioUnavailable(t *testing.T) {
	s := NewServer(inference.New(provider.New(), inference.DefaultConfig()), nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/audio/devices")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

// ─── Diagnostics ────────────────────────────────────────────────────────────

func TestTracesAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/v1/models/llm/load", map[string]string{"path": "m"})

	resp, body := env.do(t, http.MethodGet, "/api/v1/traces?limit=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if spans := body["spans"].([]any); len(spans) == 0 {
		t.Error("expected at least one span after a load")
	}

	resp, _ = env.do(t, http.MethodGet, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}
}

type stubHistory struct {
	ops []domain.OperationRecord
	err error
}

func (h stubHistory) RecentOperations(limit int) ([]domain.OperationRecord, error) {
	if h.err != nil {
		return nil, h.err
	}
	if limit < len(h.ops) {
		return h.ops[:limit], nil
	}
	return h.ops, nil
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/api/v1/history", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("journal disabled: status = %d, want 404", resp.StatusCode)
	}

	var ops []domain.OperationRecord
	for i := 0; i < 5; i++ {
		ops = append(ops, domain.OperationRecord{ID: fmt.Sprint(i), Kind: domain.ModelLLM, Op: domain.OpGenerate, Outcome: domain.OutcomeOK})
	}
	s := NewServer(env.engine, nil)
	s.SetHistory(stubHistory{ops: ops})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp2, err := http.Get(srv.URL + "/api/v1/history?limit=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var body struct {
		Operations []domain.OperationRecord `json:"operations"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Operations) != 2 {
		t.Errorf("operations = %d, want 2", len(body.Operations))
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrAlreadyLoaded, http.StatusConflict},
		{domain.ErrModelNotLoaded, http.StatusConflict},
		{domain.ErrQueueFull, http.StatusTooManyRequests},
		{&domain.BackendError{Kind: domain.ModelLLM, Op: domain.OpGenerate, Err: errors.New("boom")}, http.StatusBadGateway},
		{domain.ErrEngineClosed, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
