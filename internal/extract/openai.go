package extract

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/resilience"
)

// OpenAIClient extracts rows with an OpenAI vision model using a strict JSON
// schema response format. Strict schemas need an object at the top level, so
// rows are wrapped as {"rows": [...]}.
type OpenAIClient struct {
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAIClient creates an OpenAI backend. baseURL is optional.
func NewOpenAIClient(apiKey, baseURL string, logger *zap.Logger) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if logger == nil {
		logger = zap.L()
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), logger: logger}
}

func openAISchema() *jsonschema.Definition {
	props := make(map[string]jsonschema.Definition, len(RowKeys))
	for _, k := range RowKeys {
		props[k] = jsonschema.Definition{Type: jsonschema.String}
	}
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"rows": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type:                 jsonschema.Object,
					Properties:           props,
					Required:             RowKeys,
					AdditionalProperties: false,
				},
			},
		},
		Required:             []string{"rows"},
		AdditionalProperties: false,
	}
}

// Extract implements Client.
func (o *OpenAIClient) Extract(ctx context.Context, imagePath, modelID string) Result {
	data, mime, err := readImage(imagePath)
	if err != nil {
		return failed(FailureInput, err)
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       modelID,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: Prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailHigh,
				}},
			},
		}},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "table_rows",
				Schema: openAISchema(),
				Strict: true,
			},
		},
	})
	if err != nil {
		return failed(callFailureKind(ctx), classifyOpenAI(err))
	}
	if len(resp.Choices) == 0 {
		return failed(FailureParse, eris.New("extract: openai returned no choices"))
	}
	o.logger.Debug("extract: openai usage",
		zap.String("image", imagePath),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("output_tokens", resp.Usage.CompletionTokens))

	rows, err := ParseRows(resp.Choices[0].Message.Content)
	if err != nil {
		return failed(FailureParse, err)
	}
	return Result{Rows: rows}
}

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.HTTPStatusCode) {
		return resilience.NewTransientError(eris.Wrap(err, "extract: openai"), apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && resilience.IsTransientHTTPStatus(reqErr.HTTPStatusCode) {
		return resilience.NewTransientError(eris.Wrap(err, "extract: openai"), reqErr.HTTPStatusCode)
	}
	return eris.Wrap(err, "extract: openai")
}
