package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unsubscribe-agent/internal/config"
	"unsubscribe-agent/internal/ports"
	"unsubscribe-agent/pkg/apperr"
	"unsubscribe-agent/pkg/logg"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"

	requestTimeout = 60 * time.Second
)

var errNoAPIKey = errors.New("AI_API_KEY is not set")

type Params struct {
	fx.In

	Config     *config.Config
	Logger     *zap.Logger
	HTTPClient *http.Client `optional:"true"`
}

// NewClient builds the configured generative client. Without an API key it
// returns a client whose every call fails, so planning degrades to the
// deterministic fallback chain instead of blocking startup.
func NewClient(params Params) (ports.GenerativeClient, error) {
	cfg := params.Config.AIConfig
	provider := strings.ToLower(cfg.Provider)

	if cfg.APIKey == "" {
		params.Logger.Warn("AI_API_KEY is empty, AI-assisted planning disabled", zap.String(logg.Provider, provider))

		return disabledClient{}, nil
	}

	switch provider {
	case ProviderGemini:
		client, err := NewGeminiClient(context.Background(), cfg, params.Logger, params.HTTPClient)
		if err != nil {
			return nil, err
		}

		return client, nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, params.Logger, params.HTTPClient), nil
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", cfg.Provider)
	}
}

type disabledClient struct{}

func (disabledClient) GenerateContent(context.Context, string) (string, error) {
	return "", apperr.Wrap("GenerateContent", apperr.CodePlanningUnavailable, errNoAPIKey, map[string]any{
		apperr.MetaReason: "ai_disabled",
		apperr.MetaStage:  apperr.StageAI,
	})
}
