package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/sells-group/sitrep-cli/internal/resilience"
)

// generator is the part of genai.Models the Gemini backend uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient extracts rows with Gemini structured output: the response is
// constrained to a JSON array of row objects with string cells.
type GeminiClient struct {
	models generator
	logger *zap.Logger
}

// NewGeminiClient creates a Gemini API backend. baseURL is optional.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string, logger *zap.Logger) (*GeminiClient, error) {
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "extract: create gemini client")
	}
	if logger == nil {
		logger = zap.L()
	}
	return &GeminiClient{models: client.Models, logger: logger}, nil
}

// rowSchema mirrors wireRow with every cell typed as a string so that blank
// cells stay blank instead of being coerced to 0.
func rowSchema() *genai.Schema {
	props := make(map[string]*genai.Schema, len(RowKeys))
	for _, k := range RowKeys {
		props[k] = &genai.Schema{Type: genai.TypeString}
	}
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type:             genai.TypeObject,
			Properties:       props,
			Required:         RowKeys,
			PropertyOrdering: RowKeys,
		},
	}
}

// Extract implements Client.
func (g *GeminiClient) Extract(ctx context.Context, imagePath, modelID string) Result {
	data, mime, err := readImage(imagePath)
	if err != nil {
		return failed(FailureInput, err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(Prompt),
			genai.NewPartFromBytes(data, mime),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema:   rowSchema(),
	}

	resp, err := g.models.GenerateContent(ctx, modelID, contents, config)
	if err != nil {
		return failed(callFailureKind(ctx), classifyGemini(err))
	}
	if resp.UsageMetadata != nil {
		g.logger.Debug("extract: gemini usage",
			zap.String("image", imagePath),
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("output_tokens", resp.UsageMetadata.CandidatesTokenCount))
	}

	rows, err := ParseRows(resp.Text())
	if err != nil {
		return failed(FailureParse, err)
	}
	return Result{Rows: rows}
}

// classifyGemini marks rate limits and server errors as transient.
func classifyGemini(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.Code) {
		return resilience.NewTransientError(eris.Wrap(err, "extract: gemini"), apiErr.Code)
	}
	return eris.Wrap(err, "extract: gemini")
}

// callFailureKind distinguishes a per-call deadline from other transport errors.
func callFailureKind(ctx context.Context) FailureKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureTransport
}
