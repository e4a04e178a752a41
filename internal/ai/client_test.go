package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type recordingModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
	calls    int
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	m.messages = messages
	for _, opt := range options {
		opt(&m.opts)
	}
	return m.resp, m.err
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{in: "", want: ProviderGroq},
		{in: "groq", want: ProviderGroq},
		{in: " OpenRouter ", want: ProviderOpenRouter},
		{in: "anthropic", want: ProviderAnthropic},
		{in: "gemini", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{Provider: ProviderOpenRouter, Model: "x"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
}

func TestCompleteConvertsTranscript(t *testing.T) {
	model := &recordingModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
	client := NewClientWithModel(model, Config{Model: "llama-3.3-70b-versatile"})

	_, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "Begin"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "run_test", Arguments: "{}"}}},
		{Role: RoleTool, ToolCallID: "call_1", Name: "run_test", Content: `"TEST PASSED"`},
		{Role: RoleTool, Name: "run_test", Content: "Error: Tool call for run_test missing tool_call_id"},
	}, []ToolDefinition{{Name: "run_test", Description: "Run the test", Parameters: map[string]any{"type": "object"}}})
	require.NoError(t, err)

	require.Len(t, model.messages, 5)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)

	assistant := model.messages[2]
	assert.Equal(t, llms.ChatMessageTypeAI, assistant.Role)
	require.Len(t, assistant.Parts, 1)
	call, ok := assistant.Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "run_test", call.FunctionCall.Name)

	result := model.messages[3]
	assert.Equal(t, llms.ChatMessageTypeTool, result.Role)
	require.Len(t, result.Parts, 1)
	assert.Equal(t, llms.ToolCallResponse{ToolCallID: "call_1", Name: "run_test", Content: `"TEST PASSED"`}, result.Parts[0])

	orphan := model.messages[4]
	assert.Equal(t, llms.ChatMessageTypeHuman, orphan.Role)

	assert.InDelta(t, 0.1, model.opts.Temperature, 1e-9)
	require.Len(t, model.opts.Tools, 1)
	assert.Equal(t, "run_test", model.opts.Tools[0].Function.Name)
	assert.Equal(t, "auto", model.opts.ToolChoice)
}

func TestCompleteAnthropicOmitsToolChoice(t *testing.T) {
	model := &recordingModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
	client := NewClientWithModel(model, Config{Provider: ProviderAnthropic, Model: "claude"})

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}},
		[]ToolDefinition{{Name: "run_test", Parameters: map[string]any{"type": "object"}}})

	require.NoError(t, err)
	assert.Nil(t, model.opts.ToolChoice)
}

func TestCompleteToolCallsAndUsage(t *testing.T) {
	model := &recordingModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		StopReason: "tool_calls",
		ToolCalls: []llms.ToolCall{{
			ID:           "call_7",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "write_parser_code", Arguments: `{"code":"package main"}`},
		}},
		GenerationInfo: map[string]any{"PromptTokens": 120, "CompletionTokens": 30},
	}}}}
	client := NewClientWithModel(model, Config{})

	resp, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "go"}}, nil)

	require.NoError(t, err)
	assert.Equal(t, []ToolCall{{ID: "call_7", Name: "write_parser_code", Arguments: `{"code":"package main"}`}}, resp.ToolCalls)
	assert.Equal(t, Usage{InputTokens: 120, OutputTokens: 30, TotalTokens: 150}, resp.Usage)
	assert.Empty(t, model.opts.Tools)
}

func TestCompleteErrors(t *testing.T) {
	t.Run("model error", func(t *testing.T) {
		boom := errors.New("rate limited")
		client := NewClientWithModel(&recordingModel{err: boom}, Config{})

		_, err := client.Complete(context.Background(), nil, nil)

		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
	})

	t.Run("no choices", func(t *testing.T) {
		client := NewClientWithModel(&recordingModel{resp: &llms.ContentResponse{}}, Config{})

		_, err := client.Complete(context.Background(), nil, nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no choices")
	})
}

func TestCompleteTemperature(t *testing.T) {
	zero := 0.0
	warm := 0.7

	tests := []struct {
		name        string
		temperature *float64
		want        float64
	}{
		{name: "default", temperature: nil, want: 0.1},
		{name: "zero", temperature: &zero, want: 0},
		{name: "explicit", temperature: &warm, want: 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &recordingModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
			client := NewClientWithModel(model, Config{Temperature: tt.temperature})

			_, err := client.Complete(context.Background(), nil, nil)

			require.NoError(t, err)
			assert.InDelta(t, tt.want, model.opts.Temperature, 1e-9)
		})
	}
}

func TestCompleteRateLimited(t *testing.T) {
	model := &recordingModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}}
	client := NewClientWithModel(model, Config{RequestsPerMinute: 1})

	_, err := client.Complete(context.Background(), nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Complete(ctx, nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	assert.Equal(t, 1, model.calls)
}
