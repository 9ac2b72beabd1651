package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/pkg/apperr"
	"unsubscribe-agent/pkg/logg"
	"unsubscribe-agent/pkg/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	anthropicClientName = "AnthropicClient"
	anthropicTracer     = "ai.anthropic"
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
)

// AnthropicClient sends single-turn prompts to the Anthropic Messages API.
type AnthropicClient struct {
	config     *config.AIConfig
	logger     *zap.Logger
	tracer     trace.Tracer
	httpClient *http.Client
	baseURL    string
}

func NewAnthropicClient(cfg *config.AIConfig, logger *zap.Logger, httpClient *http.Client) *AnthropicClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}

	return &AnthropicClient{
		config:     cfg,
		logger:     logger.With(zap.String(logg.Layer, anthropicClientName)),
		tracer:     otel.Tracer(anthropicTracer),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float32         `json:"temperature"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *AnthropicClient) GenerateContent(ctx context.Context, prompt string) (text string, err error) {
	const op = "GenerateContent"
	logger := c.logger.With(zap.String(logg.Operation, op), zap.String(logg.Provider, ProviderAnthropic))

	ctx, step := tracing.StartSpan(ctx, c.tracer, logger, op,
		attribute.Int("prompt_length", len(prompt)))
	defer func() {
		step.End(err)
	}()

	reqBody := claudeRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	}

	step.AddEvent("marshaling request")

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "marshal_failed",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "request_create_failed",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	step.AddEvent("sending HTTP request")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "http_request_failed",
			apperr.MetaStage:  apperr.StageAI,
		})
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "read_body_failed",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", apperr.Wrap(op, apperr.CodeAIError, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(body)), map[string]any{
			apperr.MetaReason: "api_error",
			apperr.MetaStage:  apperr.StageAI,
			apperr.MetaStatus: httpResp.StatusCode,
		})
	}

	var claudeResp claudeResponse

	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return "", apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "unmarshal_failed",
			apperr.MetaStage:  apperr.StageAI,
		})
	}

	var sb strings.Builder

	for _, content := range claudeResp.Content {
		if content.Type == "text" {
			sb.WriteString(content.Text)
		}
	}

	logger.Debug("AI response received", zap.Int("length", sb.Len()), zap.String("stop_reason", claudeResp.StopReason))

	return sb.String(), nil
}
