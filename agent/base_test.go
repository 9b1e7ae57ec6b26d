package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/technosurge/leadflow/llm"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
)

// MockProvider 模拟 LLM Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.ChatResponse), args.Error(1)
}

func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (m *MockProvider) Name() string { return "mock" }

func textResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Model: "gpt-4o",
		Choices: []llm.ChatChoice{{
			Message: types.Message{Role: types.RoleAssistant, Content: content},
		}},
	}
}

func TestNewBaseAgent_Defaults(t *testing.T) {
	b := NewBaseAgent(Config{Type: TypeLeadBot, Model: "gpt-4o"}, &MockProvider{}, nil)

	assert.Equal(t, "leadbot", b.ID())
	assert.Equal(t, "leadbot", b.Name())
	assert.Equal(t, TypeLeadBot, b.Type())
	assert.Equal(t, "gpt-4o", b.Config().Model)
	assert.NotNil(t, b.Logger())
	assert.Equal(t, "mock", b.Provider().Name())
}

func TestBaseAgent_ChatCompletion(t *testing.T) {
	provider := &MockProvider{}
	provider.On("Completion", mock.Anything, mock.MatchedBy(func(req *llm.ChatRequest) bool {
		return req.Model == "gpt-4o" &&
			req.MaxTokens == 200 &&
			req.Temperature == 0.7 &&
			req.Purpose == "reply" &&
			req.ResponseFormat == llm.FormatText &&
			len(req.Messages) == 2
	})).Return(textResponse("  Hi there!  "), nil).Once()

	b := NewBaseAgent(Config{Type: TypeLeadBot, Model: "gpt-4o"}, provider, zap.NewNop())
	out, err := b.ChatCompletion(context.Background(), []types.Message{
		types.NewSystemMessage("be helpful"),
		types.NewUserMessage("hello"),
	}, CompletionOptions{Purpose: "reply", MaxTokens: 200, Temperature: 0.7})

	require.NoError(t, err)
	assert.Equal(t, "Hi there!", out)
	provider.AssertExpectations(t)
}

func TestBaseAgent_ChatCompletionError(t *testing.T) {
	provider := &MockProvider{}
	upstream := &llm.Error{Code: llm.ErrUpstreamError, Message: "boom"}
	provider.On("Completion", mock.Anything, mock.Anything).Return(nil, upstream)

	b := NewBaseAgent(Config{Type: TypeEmailAgent, Model: "gpt-4o-mini"}, provider, zap.NewNop())
	_, err := b.ChatCompletion(context.Background(), []types.Message{types.NewUserMessage("x")}, CompletionOptions{Purpose: "email"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, upstream))
}

func TestBaseAgent_CompleteJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		want    string
	}{
		{"plain object", `{"subject":"Hi","body":"Hello"}`, false, "Hi"},
		{"fenced block", "```json\n{\"subject\":\"Fenced\",\"body\":\"b\"}\n```", false, "Fenced"},
		{"surrounding prose", `Sure! {"subject":"Prose","body":"b"} Hope it helps.`, false, "Prose"},
		{"no object", "I cannot do that", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &MockProvider{}
			provider.On("Completion", mock.Anything, mock.MatchedBy(func(req *llm.ChatRequest) bool {
				return req.ResponseFormat == llm.FormatJSON
			})).Return(textResponse(tt.content), nil)

			b := NewBaseAgent(Config{Type: TypeEmailAgent, Model: "gpt-4o-mini"}, provider, nil)
			var out struct {
				Subject string `json:"subject"`
				Body    string `json:"body"`
			}
			raw, err := b.CompleteJSON(context.Background(), []types.Message{types.NewUserMessage("write")}, CompletionOptions{Purpose: "email"}, &out)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Subject)
			assert.NotEmpty(t, raw)
		})
	}
}
