package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/sitrep-cli/pkg/anthropic"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*anthropic.MessageResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func textResponse(text, stop string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: stop,
		Usage:      anthropic.TokenUsage{InputTokens: 1500, OutputTokens: 200},
	}
}

func TestClaudeClient_Extract(t *testing.T) {
	m := new(mockAnthropic)
	m.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		if len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 {
			return false
		}
		msg := req.Messages[0]
		return req.Model == "claude-sonnet-4" &&
			req.Temperature != nil && *req.Temperature == 0 &&
			msg.Role == "user" && msg.Content == Prompt &&
			msg.Images[0].MediaType == "image/png" && len(msg.Images[0].Data) > 0
	})).Return(textResponse("```json\n"+edoJSON+"\n```", "end_turn"), nil)

	c := NewClaudeClient(m, zap.NewNop())
	res := c.Extract(context.Background(), writeTablePNG(t), "claude-sonnet-4")
	require.True(t, res.OK(), "failure: %v", res.Failure)
	assert.Equal(t, edoRows(), res.Rows)
	m.AssertExpectations(t)
}

func TestClaudeClient_Failures(t *testing.T) {
	tests := []struct {
		name string
		resp *anthropic.MessageResponse
		err  error
		kind FailureKind
	}{
		{"transport", nil, errors.New("anthropic: create message: connection refused"), FailureTransport},
		{"truncated", textResponse(`[{"States":"Edo"`, "max_tokens"), nil, FailureParse},
		{"prose", textResponse("The image is unreadable.", "end_turn"), nil, FailureParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(mockAnthropic)
			m.On("CreateMessage", mock.Anything, mock.Anything).Return(tt.resp, tt.err)

			res := NewClaudeClient(m, zap.NewNop()).Extract(context.Background(), writeTablePNG(t), "claude-sonnet-4")
			require.False(t, res.OK())
			assert.Equal(t, tt.kind, res.Failure.Kind)
		})
	}
}
