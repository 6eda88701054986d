package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/genai"
)

// GeminiClient calls the Gemini API. The SDK client is built on first use
// because construction needs a context.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      retryPolicy

	once   sync.Once
	client *genai.Client
	err    error
}

// NewGeminiClient builds a client. baseURL may be empty.
func NewGeminiClient(apiKey, baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *GeminiClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: httpTimeout},
		retry:      newRetryPolicy(retryMax, baseDelay, maxDelay, 3, 500*time.Millisecond, 4*time.Second),
	}
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		if c.apiKey == "" {
			c.err = errors.New("GEMINI_API_KEY is missing")
			return
		}
		cfg := &genai.ClientConfig{
			APIKey:     c.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: c.httpClient,
		}
		if c.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
		}
		c.client, c.err = genai.NewClient(ctx, cfg)
		if c.err != nil {
			c.err = fmt.Errorf("create gemini client: %w", c.err)
		}
	})
	return c.client, c.err
}

func geminiRequest(req GenerateRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if req.Model == "" {
		return nil, nil, errors.New("model cannot be empty")
	}
	var contents []*genai.Content
	system := strings.TrimSpace(req.System)
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = strings.TrimSpace(system + "\n" + m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("messages cannot be empty")
	}
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, cfg, nil
}

// Generate retries 429/5xx with the shared backoff policy.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	contents, cfg, err := geminiRequest(req)
	if err != nil {
		return nil, err
	}
	client, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}
	var out *GenerateResponse
	err = c.retry.do(ctx, func() error {
		resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
		if err != nil {
			gerr := geminiError(err)
			var apiErr *APIError
			if errors.As(gerr, &apiErr) && retryableStatus(apiErr.StatusCode) {
				return gerr
			}
			return backoff.Permanent(gerr)
		}
		out = geminiResponse(resp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateStream forwards each chunk's text.
func (c *GeminiClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	contents, cfg, err := geminiRequest(req)
	if err != nil {
		return err
	}
	client, err := c.sdk(ctx)
	if err != nil {
		return err
	}
	for chunk, err := range client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
		if err != nil {
			return geminiError(err)
		}
		if t := chunk.Text(); t != "" {
			onDelta(t)
		}
	}
	return nil
}

func geminiResponse(resp *genai.GenerateContentResponse) *GenerateResponse {
	out := &GenerateResponse{}
	if len(resp.Candidates) > 0 {
		out.Choices = []Choice{{Message: Message{Role: "assistant", Content: resp.Text()}}}
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out
}

// geminiError maps genai.APIError onto the typed errors.
func geminiError(err error) error {
	var ge genai.APIError
	if !errors.As(err, &ge) {
		return err
	}
	e := &APIError{StatusCode: ge.Code, Code: ge.Status, Message: ge.Message}
	if ge.Code == http.StatusNotFound {
		e.Code = "model_not_found"
	}
	if ge.Status == "RESOURCE_EXHAUSTED" && ge.Code != http.StatusTooManyRequests {
		return &QuotaExceededError{APIError: e}
	}
	return classifyAPIError(e, nil)
}
