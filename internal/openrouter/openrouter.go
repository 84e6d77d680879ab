// Package openrouter is the chat-completion client for the OpenRouter API.
//
// OpenRouter exposes an OpenAI-compatible endpoint, so the client is built
// on the official OpenAI SDK with the base URL swapped and the attribution
// headers OpenRouter expects.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	appReferer     = "https://dishdazzle.app"
	appTitle       = "DishDazzle"
)

// ModelIDs maps the user-facing model choice (the value of MODEL_SELECTED)
// to the OpenRouter model identifier sent on the wire.
var ModelIDs = map[string]string{
	"deepseek": "deepseek/deepseek-v3.1",
	"llama":    "meta-llama/llama-3-3-70b-instruct",
}

// ResolveModel returns the OpenRouter model ID for a user-facing choice.
func ResolveModel(selected string) (string, error) {
	id, ok := ModelIDs[selected]
	if !ok {
		return "", fmt.Errorf("openrouter: unknown model %q (supported: %v)", selected, SupportedModels())
	}
	return id, nil
}

// SupportedModels returns the user-facing model choices in sorted order.
func SupportedModels() []string {
	names := make([]string, 0, len(ModelIDs))
	for n := range ModelIDs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type (
	// Message is a single turn in a conversation (role + text content).
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	// ChatRequest is a single outbound chat-completion call.
	ChatRequest struct {
		Model       string
		Messages    []Message
		Temperature float64
		MaxTokens   int
	}

	// Usage holds token counts reported by the upstream API.
	Usage struct {
		InputTokens  int
		OutputTokens int
	}

	// ChatResponse is the normalized completion result.
	ChatResponse struct {
		ID      string
		Model   string
		Content string
		Usage   Usage
	}
)

// Client talks to the OpenRouter chat-completion endpoint.
type Client struct {
	apiKey  string
	baseURL string
	client  openaiSDK.Client
}

type Option func(*Client)

// WithBaseURL overrides the OpenRouter endpoint. Useful for local mocks.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// New creates a Client for the given API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}

	for _, o := range opts {
		o(c)
	}

	c.client = openaiSDK.NewClient(
		option.WithAPIKey(c.apiKey),
		option.WithBaseURL(c.baseURL),
		option.WithHTTPClient(&http.Client{}),
		option.WithHeader("HTTP-Referer", appReferer),
		option.WithHeader("X-Title", appTitle),
	)

	return c
}

// Chat performs one chat-completion attempt. Retrying is the caller's
// responsibility; this method never retries on its own.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, &APIError{StatusCode: http.StatusUnauthorized, Message: "no API key configured"}
	}

	msgs := make([]openaiSDK.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toSDKMessage(m.Role, m.Content))
	}

	params := openaiSDK.ChatCompletionNewParams{
		Messages: msgs,
		Model:    req.Model,
	}
	if req.Temperature != 0 {
		params.Temperature = openaiSDK.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openaiSDK.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, toAPIError(err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &ChatResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: content,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// HealthCheck verifies the API key and connectivity with a model listing.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openrouter: health check: %w", toAPIError(err))
	}
	return nil
}

// APIError carries the upstream HTTP status so the retry policy can
// classify the failure as transient or fatal.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openrouter: %s (status=%d)", e.Message, e.StatusCode)
}

func (e *APIError) HTTPStatus() int { return e.StatusCode }

func toAPIError(err error) error {
	var sdkErr *openaiSDK.Error
	if errors.As(err, &sdkErr) {
		return &APIError{
			StatusCode: sdkErr.StatusCode,
			Message:    sdkErr.Error(),
		}
	}
	return err
}

func toSDKMessage(role, content string) openaiSDK.ChatCompletionMessageParamUnion {
	switch role {
	case "system":
		return openaiSDK.SystemMessage(content)
	case "assistant":
		return openaiSDK.AssistantMessage(content)
	default:
		return openaiSDK.UserMessage(content)
	}
}
