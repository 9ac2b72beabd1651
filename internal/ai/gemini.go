package ai

import (
	"context"
	"net/http"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/pkg/apperr"
	"unsubscribe-agent/pkg/logg"
	"unsubscribe-agent/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	geminiClientName = "GeminiClient"
	geminiTracer     = "ai.gemini"
)

type GeminiClient struct {
	config *config.AIConfig
	logger *zap.Logger
	tracer trace.Tracer
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, cfg *config.AIConfig, logger *zap.Logger, httpClient *http.Client) (*GeminiClient, error) {
	const op = "NewGeminiClient"

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}

	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "client_create_failed",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	return &GeminiClient{
		config: cfg,
		logger: logger.With(zap.String(logg.Layer, geminiClientName)),
		tracer: otel.Tracer(geminiTracer),
		client: client,
	}, nil
}

func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string) (text string, err error) {
	const op = "GenerateContent"
	logger := c.logger.With(zap.String(logg.Operation, op), zap.String(logg.Provider, ProviderGemini))

	ctx, step := tracing.StartSpan(ctx, c.tracer, logger, op,
		attribute.String("model", c.config.Model),
		attribute.Int("prompt_length", len(prompt)))
	defer func() {
		step.End(err)
	}()

	generateConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](c.config.Temperature),
	}

	if c.config.MaxTokens > 0 {
		generateConfig.MaxOutputTokens = int32(c.config.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(prompt), generateConfig)
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeAIError, err, map[string]any{
			apperr.MetaReason: "generate_failed",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	text = resp.Text()
	logger.Debug("AI response received", zap.Int("length", len(text)))

	return text, nil
}
