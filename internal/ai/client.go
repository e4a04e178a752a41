package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

type Provider string

const (
	ProviderGroq       Provider = "groq"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
)

const (
	groqBaseURL       = "https://api.groq.com/openai/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"

	defaultTemperature = 0.1
	defaultTimeout     = 90 * time.Second
)

var ErrMissingAPIKey = errors.New("API key is required")

// ParseProvider validates a provider name.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	switch p {
	case ProviderGroq, ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic:
		return p, nil
	case "":
		return ProviderGroq, nil
	default:
		return "", fmt.Errorf("unknown provider %q (want groq, openrouter, openai or anthropic)", name)
	}
}

// APIKeyEnv is the environment variable holding the provider's key.
func (p Provider) APIKeyEnv() string {
	switch p {
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "GROQ_API_KEY"
	}
}

func (p Provider) defaultBaseURL() string {
	switch p {
	case ProviderGroq:
		return groqBaseURL
	case ProviderOpenRouter:
		return openRouterBaseURL
	default:
		return ""
	}
}

// Client sends transcripts plus a tool catalog to a chat model and returns
// either text or tool calls.
type Client struct {
	model       llms.Model
	provider    Provider
	modelName   string
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderGroq
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingAPIKey, cfg.Provider.APIKeyEnv())
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = cfg.Provider.defaultBaseURL()
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		opts := []anthropic.Option{
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		}
		if baseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(baseURL))
		}
		model, err = anthropic.New(opts...)
	default:
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		model, err = openai.New(opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	return NewClientWithModel(model, cfg), nil
}

// NewClientWithModel wraps an existing llms.Model.
func NewClientWithModel(model llms.Model, cfg Config) *Client {
	temperature := defaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderGroq
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Client{
		model:       model,
		provider:    provider,
		modelName:   cfg.Model,
		temperature: temperature,
		timeout:     timeout,
		limiter:     limiter,
	}
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string {
	return c.modelName
}

// Complete requests one model turn for the given transcript.
func (c *Client) Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := []llms.CallOption{
		llms.WithTemperature(c.temperature),
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(toLLMTools(tools)))
		if c.provider != ProviderAnthropic {
			opts = append(opts, llms.WithToolChoice("auto"))
		}
	}

	resp, err := c.model.GenerateContent(ctx, toLLMMessages(messages), opts...)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.provider, err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", c.provider)
	}

	return fromChoice(resp.Choices[0]), nil
}

func toLLMTools(defs []ToolDefinition) []llms.Tool {
	tools := make([]llms.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools
}

// toLLMMessages converts the transcript. A tool result without a correlation
// token cannot be sent as a tool message (providers reject it), so it is
// delivered as a user note instead.
func toLLMMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case RoleAssistant:
			var parts []llms.ContentPart
			if m.Content != "" || len(m.ToolCalls) == 0 {
				parts = append(parts, llms.TextContent{Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				parts = append(parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case RoleTool:
			if m.ToolCallID == "" {
				out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, "Tool result: "+m.Content))
				continue
			}
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				}},
			})
		}
	}
	return out
}

func fromChoice(choice *llms.ContentChoice) *Response {
	resp := &Response{
		Content:    choice.Content,
		StopReason: choice.StopReason,
	}

	for _, call := range choice.ToolCalls {
		tc := ToolCall{ID: call.ID}
		if call.FunctionCall != nil {
			tc.Name = call.FunctionCall.Name
			tc.Arguments = call.FunctionCall.Arguments
		}
		resp.ToolCalls = append(resp.ToolCalls, tc)
	}

	if choice.GenerationInfo != nil {
		resp.Usage = extractUsage(choice.GenerationInfo)
	}

	return resp
}

// extractUsage normalizes token counts; providers report them under
// different keys.
func extractUsage(info map[string]any) Usage {
	u := Usage{
		InputTokens:  firstInt(info, "PromptTokens", "InputTokens", "input_tokens"),
		OutputTokens: firstInt(info, "CompletionTokens", "OutputTokens", "output_tokens"),
		TotalTokens:  firstInt(info, "TotalTokens", "total_tokens"),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}

func firstInt(m map[string]any, keys ...string) int {
	for _, key := range keys {
		if v := getInt(m, key); v > 0 {
			return v
		}
	}
	return 0
}

func getInt(m map[string]any, key string) int {
	switch n := m[key].(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}
