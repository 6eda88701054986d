package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicGenerate(t *testing.T) {
	var body map[string]any
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "sk-test", r.Header.Get("X-Api-Key"))
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_01",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-3-5-sonnet-20241022",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": "- trend: up"}},
			"usage":         map[string]any{"input_tokens": 12, "output_tokens": 4},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-test", srv.URL, 2*time.Second, 1)
	req := UserPrompt("claude-3-5-sonnet-20241022", "Columns: a, b", 2000, 0)
	req.System = "be brief"
	resp, err := c.Generate(context.Background(), req)
	require.NoError(t, err)

	text, ok := resp.Text()
	require.True(t, ok)
	assert.Equal(t, "- trend: up", text)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
	assert.Equal(t, "msg_01", resp.ID)

	assert.EqualValues(t, 2000, body["max_tokens"])
	assert.Equal(t, "claude-3-5-sonnet-20241022", body["model"])
	assert.Contains(t, body, "system")
	assert.NotContains(t, body, "temperature")
}

func TestAnthropicNonTextReplyHasNoChoice(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_02",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-3-5-sonnet-20241022",
			"stop_reason":   "tool_use",
			"stop_sequence": nil,
			"content": []map[string]any{{
				"type":  "tool_use",
				"id":    "toolu_01",
				"name":  "plot",
				"input": map[string]any{},
			}},
			"usage": map[string]any{"input_tokens": 12, "output_tokens": 3},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-test", srv.URL, 2*time.Second, 1)
	resp, err := c.Generate(context.Background(), UserPrompt("claude-3-5-sonnet-20241022", "Columns: a", 100, 0))
	require.NoError(t, err)
	assert.Empty(t, resp.Choices)
	_, ok := resp.Text()
	assert.False(t, ok)
}

func TestAnthropicAuthErrorIsTyped(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Request-Id", "req_abc")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "authentication_error", "message": "invalid x-api-key"},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient("bad", srv.URL, 2*time.Second, 1)
	_, err := c.Generate(context.Background(), UserPrompt("claude-3-5-sonnet-20241022", "hi", 10, 0))
	require.Error(t, err)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "got %T: %v", err, err)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, "req_abc", authErr.RequestID)
}

func TestAnthropicRejectsEmptyRequest(t *testing.T) {
	c := NewAnthropicClient("k", "", time.Second, 1)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m"})
	assert.EqualError(t, err, "messages cannot be empty")
	_, err = c.Generate(context.Background(), GenerateRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	assert.EqualError(t, err, "model cannot be empty")
}

func TestGeminiGenerate(t *testing.T) {
	var path string
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": "anomaly: row 3"}}},
			}},
			"usageMetadata": map[string]any{"promptTokenCount": 3, "candidatesTokenCount": 2, "totalTokenCount": 5},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient("g-key", srv.URL, 2*time.Second, 1, 0, 0)
	resp, err := c.Generate(context.Background(), UserPrompt("gemini-2.0-flash", "hi", 100, 0.2))
	require.NoError(t, err)
	text, ok := resp.Text()
	require.True(t, ok)
	assert.Equal(t, "anomaly: row 3", text)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.Contains(t, path, "gemini-2.0-flash:generateContent")
}

func TestGeminiNotFound(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 404, "message": "models/nope is not found", "status": "NOT_FOUND"},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient("g-key", srv.URL, 2*time.Second, 1, 0, 0)
	_, err := c.Generate(context.Background(), UserPrompt("nope", "hi", 10, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGeminiRequiresKey(t *testing.T) {
	c := NewGeminiClient("", "", time.Second, 1, 0, 0)
	_, err := c.Generate(context.Background(), UserPrompt("gemini-2.0-flash", "hi", 10, 0))
	assert.ErrorContains(t, err, "GEMINI_API_KEY")
}
