// Package llm talks to an OpenAI-compatible chat completions endpoint to
// produce channel coaching.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/squigly/coach-api/internal/metrics"
)

const systemPrompt = "You are Squigly, elite YouTube Shorts coach."

// Client is a client for a chat completions API such as xAI Grok.
type Client struct {
	baseURL     string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// Config holds the configuration for the client.
type Config struct {
	BaseURL     string        // e.g. "https://api.x.ai/v1"
	Model       string        // e.g. "grok-4-1-fast-reasoning"
	APIKey      string        // sent as a Bearer token
	Temperature float64       // default 0.7
	MaxTokens   int           // default 4000
	Timeout     time.Duration // default 120 seconds
}

// NewClient creates a new Client.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4000
	}

	return &Client{
		baseURL:     strings.TrimSuffix(config.BaseURL, "/"),
		model:       config.Model,
		apiKey:      config.APIKey,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// APIError is a non-2xx reply from the completions endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm API returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm API returned status %d: %s", e.StatusCode, e.Body)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Coach runs one coaching completion and splits the reply into analysis and fixes.
func (c *Client) Coach(ctx context.Context, req CoachingRequest) (*Coaching, error) {
	start := time.Now()
	text, err := c.complete(ctx, BuildPrompt(req))
	metrics.ObserveUpstream("llm", start, err)
	if err != nil {
		return nil, err
	}

	analysis, fixes := ParseReply(text)
	return &Coaching{Analysis: analysis, Fixes: fixes, Raw: text}, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request to llm: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if decodeErr == nil && parsed.Error != nil {
			apiErr.Message = parsed.Error.Message
		}
		return "", apiErr
	}
	if decodeErr != nil {
		return "", fmt.Errorf("parse llm response: %w", decodeErr)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm response contained no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
