package extract

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/internal/resilience"
)

func openAIServer(t *testing.T, status int, reply string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			b, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(b, seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_Extract(t *testing.T) {
	reply := `{"id":"c1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop",
		"message":{"role":"assistant","content":` + quoteJSON(`{"rows":`+edoJSON+`}`) + `}}],
		"usage":{"prompt_tokens":800,"completion_tokens":90,"total_tokens":890}}`
	var req map[string]any
	srv := openAIServer(t, http.StatusOK, reply, &req)

	c := NewOpenAIClient("sk-test", srv.URL+"/v1", zap.NewNop())
	res := c.Extract(context.Background(), writeTablePNG(t), "gpt-4o")
	require.True(t, res.OK(), "failure: %v", res.Failure)
	assert.Equal(t, edoRows(), res.Rows)

	assert.Equal(t, "gpt-4o", req["model"])
	format := req["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])

	msgs := req["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	image := content[1].(map[string]any)["image_url"].(map[string]any)
	assert.Contains(t, image["url"], "data:image/png;base64,")
}

func TestOpenAIClient_RateLimited(t *testing.T) {
	srv := openAIServer(t, http.StatusTooManyRequests,
		`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`, nil)

	res := NewOpenAIClient("sk-test", srv.URL+"/v1", zap.NewNop()).
		Extract(context.Background(), writeTablePNG(t), "gpt-4o")
	require.False(t, res.OK())
	assert.Equal(t, FailureTransport, res.Failure.Kind)
	assert.True(t, resilience.IsTransient(res.Failure))
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, `{"id":"c1","choices":[]}`, nil)

	res := NewOpenAIClient("sk-test", srv.URL+"/v1", zap.NewNop()).
		Extract(context.Background(), writeTablePNG(t), "gpt-4o")
	require.False(t, res.OK())
	assert.Equal(t, FailureParse, res.Failure.Kind)
}
