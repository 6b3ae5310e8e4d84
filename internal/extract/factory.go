package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/config"
	"github.com/sells-group/sitrep-cli/internal/resilience"
	"github.com/sells-group/sitrep-cli/pkg/anthropic"
)

// New builds the configured backend wrapped in a Guard.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Client, error) {
	var backend Client
	switch cfg.Extract.Provider {
	case "gemini":
		gc, err := NewGeminiClient(ctx, cfg.Gemini.Key, cfg.Gemini.BaseURL, logger)
		if err != nil {
			return nil, err
		}
		backend = gc
	case "anthropic":
		backend = NewClaudeClient(anthropic.NewClient(cfg.Anthropic.Key), logger)
	case "openai":
		backend = NewOpenAIClient(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, logger)
	default:
		return nil, eris.Errorf("extract: unknown provider %q", cfg.Extract.Provider)
	}

	retry := resilience.DefaultRetryConfig()
	retry.Attempts = cfg.Extract.CallRetries + 1
	retry.Initial = 2 * time.Second

	return NewGuard(backend, GuardConfig{
		Timeout:       time.Duration(cfg.Extract.TimeoutSecs) * time.Second,
		RatePerMinute: cfg.Extract.RatePerMinute,
		Retry:         retry,
		Breaker:       resilience.BreakerConfig{Threshold: cfg.Extract.BreakerTrips, Cooldown: time.Minute},
	}, logger), nil
}
