// Package provider is a client for OpenAI-compatible chat completion APIs.
// The API key is supplied per call so a credential pool can rotate keys.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config holds configuration for the provider client.
type Config struct {
	BaseURL    string
	Model      string
	ProbeModel string
	Timeout    time.Duration
}

// Client calls the chat completions endpoint.
type Client struct {
	client     *resty.Client
	endpoint   string
	model      string
	probeModel string
}

// NewClient creates a new provider client.
// Parameters:
//   - cfg: base URL, models and timeout.
//
// Returns:
//   - *Client: initialized client.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	probeModel := cfg.ProbeModel
	if probeModel == "" {
		probeModel = cfg.Model
	}

	return &Client{
		client:     client,
		endpoint:   baseURL + "/chat/completions",
		model:      cfg.Model,
		probeModel: probeModel,
	}
}

// Model returns the model used for generation.
func (c *Client) Model() string {
	return c.model
}

// HTTPError is a failed provider call. StatusCode is 0 when no response was received.
type HTTPError struct {
	StatusCode int
	Message    string
	Limits     RateLimits
}

func (e *HTTPError) Error() string {
	if e.StatusCode == 0 {
		return "provider request failed: " + e.Message
	}
	return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, e.Message)
}

// JSONSchema constrains the model output to a JSON document.
type JSONSchema struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

// ChatRequest is one generation call.
type ChatRequest struct {
	System    string
	User      string
	Schema    *JSONSchema
	MaxTokens int
}

// Usage is the token accounting the provider reported.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a successful completion.
type Response struct {
	Content    string
	Usage      Usage
	Limits     RateLimits
	ReceivedAt time.Time
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete runs a chat completion with key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: API key to authenticate with.
//   - req: prompts, optional output schema and token limit.
//
// Returns:
//   - *Response: message content, usage and rate limits.
//   - error: *HTTPError for transport, status or envelope failures.
func (c *Client) Complete(ctx context.Context, key string, req ChatRequest) (*Response, error) {
	body := openAIRequest{
		Model:     c.model,
		MaxTokens: req.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, openAIMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, openAIMessage{Role: "user", Content: req.User})
	if req.Schema != nil {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_schema", JSONSchema: req.Schema}
	}
	return c.send(ctx, key, body)
}

// Probe makes the smallest possible call to check a key and read its quota.
func (c *Client) Probe(ctx context.Context, key string) (*Response, error) {
	return c.send(ctx, key, openAIRequest{
		Model:     c.probeModel,
		Messages:  []openAIMessage{{Role: "user", Content: "Hello"}},
		MaxTokens: 1,
	})
}

func (c *Client) send(ctx context.Context, key string, body openAIRequest) (*Response, error) {
	var resp openAIResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(key).
		SetBody(body).
		SetResult(&resp).
		SetError(&resp).
		Post(c.endpoint)
	if err != nil {
		return nil, &HTTPError{Message: err.Error()}
	}

	limits := ParseRateLimits(httpResp.Header())

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		msg := string(httpResp.Body())
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return nil, &HTTPError{StatusCode: httpResp.StatusCode(), Message: msg, Limits: limits}
	}
	if resp.Error != nil {
		return nil, &HTTPError{StatusCode: httpResp.StatusCode(), Message: resp.Error.Message, Limits: limits}
	}
	if len(resp.Choices) == 0 {
		return nil, &HTTPError{
			StatusCode: httpResp.StatusCode(),
			Message:    "no choices in response: " + string(httpResp.Body()),
			Limits:     limits,
		}
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, &HTTPError{StatusCode: httpResp.StatusCode(), Message: "model refused: " + choice.Message.Refusal, Limits: limits}
	}

	return &Response{
		Content:    choice.Message.Content,
		Usage:      resp.Usage,
		Limits:     limits,
		ReceivedAt: httpResp.ReceivedAt(),
	}, nil
}
