// Package llm is the boundary to the external text-completion backend.
// It speaks the OpenAI-compatible chat completions protocol and is the
// only non-deterministic input source in the system. The client does
// not retry; retry policy lives with the dispatcher.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client is an OpenAI-compatible chat completions client.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

// StatusError is returned for non-200 responses so callers can decide
// whether the failure is transient.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Transient reports whether the status indicates a retryable backend
// condition (rate limiting or server-side failure).
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Request carries one completion call.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// NewClient creates a new Client.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
	}
}

// Model returns the configured model id.
func (c *Client) Model() string { return c.model }

// Complete sends a single chat completion request.
func (c *Client) Complete(ctx context.Context, r Request) (*Completion, error) {
	reqBody := ChatRequest{
		Model:       c.model,
		Messages:    r.Messages,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("llm: %w", &StatusError{Code: resp.StatusCode, Body: string(respBody)})
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("llm: response contained no choices")
	}

	out := &Completion{
		Content: chatResp.Choices[0].Message.Content,
		Model:   chatResp.Model,
	}
	if out.Model == "" {
		out.Model = c.model
	}
	if chatResp.Usage != nil {
		out.TokensUsed = chatResp.Usage.TotalTokens
	}
	return out, nil
}
