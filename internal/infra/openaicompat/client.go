// Package openaicompat implements text and speech backends on top of any
// OpenAI-compatible HTTP server (llama.cpp server, whisper.cpp server,
// vLLM, or the OpenAI API itself).
//
// The model path passed to load is the model ID the server knows the
// model by. Construction optionally verifies that ID with GET /models/{id}.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var errReleased = errors.New("backend already released")

// Config holds configuration for one OpenAI-compatible endpoint.
type Config struct {
	BaseURL        string        // e.g. http://127.0.0.1:8080/v1/
	APIKey         string        // optional for local servers
	EmbeddingModel string        // overrides the model ID for /embeddings
	Timeout        time.Duration // per request (default 2m)
	MaxRetries     int           // default 2
	Verify         bool          // check the model ID exists on construction
	HTTPClient     *http.Client  // optional
}

// DefaultConfig returns defaults for a local server.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://127.0.0.1:8080/v1/",
		Timeout:    2 * time.Minute,
		MaxRetries: 2,
		Verify:     true,
	}
}

func newClient(cfg Config) *openai.Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultConfig().Timeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	opts := []option.RequestOption{
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	// Local servers accept any key; the SDK still wants one.
	key := cfg.APIKey
	if key == "" {
		key = "none"
	}
	opts = append(opts, option.WithAPIKey(key))

	client := openai.NewClient(opts...)
	return &client
}

func verifyModel(ctx context.Context, client *openai.Client, model string) error {
	if _, err := client.Models.Get(ctx, model); err != nil {
		return fmt.Errorf("model %q: %w", model, err)
	}
	return nil
}

// handle carries the state shared by both backends.
type handle struct {
	client   *openai.Client
	model    string
	released atomic.Bool
}

func (h *handle) check() error {
	if h.released.Load() {
		return errReleased
	}
	return nil
}

// Model returns the model ID.
func (h *handle) Model() string { return h.model }

// Release drops the client. Remote servers keep the model resident; there is
// nothing else to free.
func (h *handle) Release() error {
	h.released.Store(true)
	return nil
}
