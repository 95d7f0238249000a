// Package generator turns one prompt into a structured blog post through the credential pool.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/linkweaver/internal/keypool"
	"github.com/timmy/linkweaver/internal/provider"
)

// Kind classifies a generation failure so the caller can choose between delay and fail.
type Kind string

const (
	// KindNoCredential means no credential could take the call; retry later.
	KindNoCredential Kind = "no_credential"
	// KindProviderHTTP means the provider rejected or failed the call.
	KindProviderHTTP Kind = "provider_http"
	// KindMalformedOutput means the provider answered but not with the agreed JSON.
	KindMalformedOutput Kind = "malformed_output"
)

// Error is a classified generation failure.
type Error struct {
	Kind Kind
	// NextAvailable is set for KindNoCredential.
	NextAvailable time.Time
	Err           error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generate content (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Executor runs a provider call on a pooled credential.
type Executor interface {
	ExecuteRequest(ctx context.Context, fn keypool.RequestFunc) (*provider.Response, error)
}

// Completer performs a chat completion with an explicit key.
type Completer interface {
	Complete(ctx context.Context, key string, req provider.ChatRequest) (*provider.Response, error)
}

// Prompt is the message pair sent to the provider.
type Prompt struct {
	System string
	User   string
}

// Result is a parsed blog post.
type Result struct {
	Title           string `json:"title"`
	Body            string `json:"body"`
	MetaTitle       string `json:"meta_title"`
	MetaDescription string `json:"meta_description"`
	Usage           provider.Usage
}

// Generator is a stateless adapter between the pool and the provider client.
type Generator struct {
	pool   Executor
	client Completer
}

// New creates a Generator.
func New(pool Executor, client Completer) *Generator {
	return &Generator{pool: pool, client: client}
}

// GenerateContent asks the provider for a post matching schema within tokenBudget.
// Failures come back as *Error; errors from the record store are returned as-is.
func (g *Generator) GenerateContent(ctx context.Context, prompt Prompt, schema *provider.JSONSchema, tokenBudget int) (*Result, error) {
	req := provider.ChatRequest{
		System:    prompt.System,
		User:      prompt.User,
		Schema:    schema,
		MaxTokens: tokenBudget,
	}

	resp, err := g.pool.ExecuteRequest(ctx, func(ctx context.Context, key string) (*provider.Response, error) {
		return g.client.Complete(ctx, key, req)
	})
	if err != nil {
		return nil, classify(err)
	}

	result, err := parse(resp.Content)
	if err != nil {
		return nil, &Error{Kind: KindMalformedOutput, Err: err}
	}
	result.Usage = resp.Usage
	return result, nil
}

func classify(err error) error {
	var exhausted *keypool.ExhaustedError
	if !errors.As(err, &exhausted) {
		return err
	}
	var httpErr *provider.HTTPError
	if exhausted.Attempted > 0 && errors.As(exhausted.LastErr, &httpErr) {
		return &Error{Kind: KindProviderHTTP, NextAvailable: exhausted.NextAvailable, Err: err}
	}
	return &Error{Kind: KindNoCredential, NextAvailable: exhausted.NextAvailable, Err: err}
}

func parse(content string) (*Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("empty content")
	}
	var r Result
	dec := json.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode structured output: %w", err)
	}
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Body) == "" {
		return nil, errors.New("structured output is missing title or body")
	}
	return &r, nil
}
