package openaicompat

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"

	"github.com/saira-network/saira/internal/domain"
)

// Text implements domain.TextBackend with /chat/completions and /embeddings.
type Text struct {
	handle
	embedModel string
}

// NewTextFactory returns a factory that builds Text backends.
func NewTextFactory(cfg Config) domain.TextFactory {
	return func(ctx context.Context, path string) (domain.TextBackend, error) {
		client := newClient(cfg)
		if cfg.Verify {
			if err := verifyModel(ctx, client, path); err != nil {
				return nil, err
			}
		}
		embedModel := cfg.EmbeddingModel
		if embedModel == "" {
			embedModel = path
		}
		return &Text{handle: handle{client: client, model: path}, embedModel: embedModel}, nil
	}
}

// Generate runs a single-turn chat completion.
func (t *Text) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	if err := t.check(); err != nil {
		return "", err
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if opts.System != "" {
		messages = append(messages, openai.SystemMessage(opts.System))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    t.model,
		Messages: messages,
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(float64(opts.Temperature))
	}
	if opts.TopP > 0 {
		params.TopP = openai.Float(float64(opts.TopP))
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding of text.
func (t *Text) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := t.check(); err != nil {
		return nil, err
	}

	params := openai.EmbeddingNewParams{
		Model:          t.embedModel,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	resp, err := t.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	for _, item := range resp.Data {
		if item.Index == 0 {
			return float64sToFloat32s(item.Embedding), nil
		}
	}
	return nil, errors.New("embeddings: missing vector for index 0")
}

func float64sToFloat32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
