package extract

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/resilience"
	"github.com/sells-group/sitrep-cli/pkg/anthropic"
)

const claudeSystem = "You transcribe tables from images into JSON. Reply with the JSON array only."

// ClaudeClient extracts rows with an Anthropic vision model. Claude has no
// schema-constrained output here, so the prompt alone fixes the shape.
type ClaudeClient struct {
	client    anthropic.Client
	maxTokens int64
	logger    *zap.Logger
}

// NewClaudeClient wraps an Anthropic client.
func NewClaudeClient(client anthropic.Client, logger *zap.Logger) *ClaudeClient {
	if logger == nil {
		logger = zap.L()
	}
	return &ClaudeClient{client: client, maxTokens: 8192, logger: logger}
}

// Extract implements Client.
func (c *ClaudeClient) Extract(ctx context.Context, imagePath, modelID string) Result {
	data, mime, err := readImage(imagePath)
	if err != nil {
		return failed(FailureInput, err)
	}

	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       modelID,
		MaxTokens:   c.maxTokens,
		System:      claudeSystem,
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: Prompt,
			Images:  []anthropic.Image{{MediaType: mime, Data: data}},
		}},
	})
	if err != nil {
		return failed(callFailureKind(ctx), classifyClaude(err))
	}
	resp.Usage.LogCost(modelID, imagePath)

	if resp.StopReason == "max_tokens" {
		return failed(FailureParse, eris.Errorf("extract: claude response truncated at %d tokens", c.maxTokens))
	}
	rows, err := ParseRows(resp.Text())
	if err != nil {
		return failed(FailureParse, err)
	}
	return Result{Rows: rows}
}

func classifyClaude(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}
