// Package openaisdk implements ai.Generator with the official openai-go SDK.
//
// Unlike the langchaingo client, the SDK exposes typed HTTP errors, so quota
// rejections carry the provider's Retry-After hint precisely.
package openaisdk

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/poiesic/opsmind/ai"
)

// Generator implements ai.Generator using the openai-go chat completions API.
type Generator struct {
	client      openai.Client
	model       string
	temperature float64
	logger      *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// NewGenerator creates a generator for config.GenerationHost.
// SDK-level retries are disabled; callers decide how to react to quota errors.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	base := config.GenerationHost
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	client := openai.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(base),
		option.WithMaxRetries(0),
	)

	return &Generator{
		client:      client,
		model:       config.GenerationModel,
		temperature: config.Temperature,
		logger:      slog.Default().With("component", "openaisdk-generator"),
	}, nil
}

// Generate runs a single chat completion.
func (g *Generator) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	temperature := g.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		g.logger.Error("chat completion failed", "model", g.model, "err", err)
		return nil, classify(err)
	}

	if len(completion.Choices) == 0 {
		return nil, ai.ErrEmptyResponse
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return nil, ai.ErrEmptyResponse
	}

	model := completion.Model
	if model == "" {
		model = g.model
	}
	return &ai.GenerateResponse{Text: text, Model: model}, nil
}

// Model returns the generation model identifier.
func (g *Generator) Model() string {
	return g.model
}

func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return ai.ClassifyError(err)
	}
	retryAfter := ""
	if apiErr.Response != nil {
		retryAfter = apiErr.Response.Header.Get("Retry-After")
	}
	return ai.ClassifyStatus(apiErr.StatusCode, retryAfter, err)
}
