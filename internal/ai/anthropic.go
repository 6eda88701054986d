package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient calls the Messages API through the official SDK. The SDK
// owns transport retries; attempts map onto option.WithMaxRetries.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient builds a client. baseURL may be empty.
func NewAnthropicClient(apiKey, baseURL string, httpTimeout time.Duration, retryMax int) *AnthropicClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(retryMax - 1),
		option.WithHTTPClient(&http.Client{Timeout: httpTimeout}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{client: &client}
}

func (c *AnthropicClient) params(req GenerateRequest) (anthropic.MessageNewParams, error) {
	if req.Model == "" {
		return anthropic.MessageNewParams{}, errors.New("model cannot be empty")
	}
	var messages []anthropic.MessageParam
	var system []anthropic.TextBlockParam
	if s := strings.TrimSpace(req.System); s != "" {
		system = append(system, anthropic.TextBlockParam{Text: s})
	}
	for _, m := range req.Messages {
		content := m.Content
		// the API rejects empty text blocks
		if content == "" {
			content = " "
		}
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: content})
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		}
	}
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, errors.New("messages cannot be empty")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	p := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
		System:    system,
	}
	if req.Temperature > 0 {
		p.Temperature = anthropic.Float(req.Temperature)
	}
	return p, nil
}

// Generate sends one Messages request and flattens the text blocks.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	params, err := c.params(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, anthropicError(err)
	}
	return anthropicResponse(msg), nil
}

// GenerateStream streams text deltas and discards other event types.
func (c *AnthropicClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	params, err := c.params(req)
	if err != nil {
		return err
	}
	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()
	for stream.Next() {
		event := stream.Current()
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok && delta.Delta.Text != "" {
			onDelta(delta.Delta.Text)
		}
	}
	if err := stream.Err(); err != nil {
		return anthropicError(err)
	}
	return nil
}

func anthropicResponse(msg *anthropic.Message) *GenerateResponse {
	var text strings.Builder
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	out := &GenerateResponse{
		ID: msg.ID,
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		RequestID: msg.ID,
	}
	// a message with no text blocks counts as no choice
	if text.Len() > 0 {
		out.Choices = []Choice{{Message: Message{Role: "assistant", Content: text.String()}}}
	}
	return out
}

// anthropicError maps SDK errors onto the package's typed errors.
func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	e := &APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	if apiErr.Response != nil {
		e.RequestID = extractRequestID(apiErr.Response)
	}
	if apiErr.StatusCode == http.StatusNotFound {
		e.Code = "not_found_error"
	}
	return classifyAPIError(e, apiErr.Response)
}
