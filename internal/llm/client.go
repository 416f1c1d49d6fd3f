package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client wraps the queue for one kind of upstream call. The memory
// engine's embedder holds a KindEmbedding client; anything handing
// retrieved memories to the generative model holds a KindGeneration
// one.
type Client struct {
	manager *Manager
	kind    Kind
	timeout time.Duration
}

// NewClient creates a queue client for the given kind. A zero timeout
// falls back to the queue config's per-kind default.
func NewClient(manager *Manager, kind Kind, timeout time.Duration) *Client {
	return &Client{
		manager: manager,
		kind:    kind,
		timeout: timeout,
	}
}

// Call submits a request and blocks until the queue delivers the
// response body, an error, or ctx is cancelled.
func (c *Client) Call(ctx context.Context, url string, payload map[string]interface{}) ([]byte, error) {
	respCh := make(chan *Response, 1)
	errCh := make(chan error, 1)

	req := &Request{
		ID:         fmt.Sprintf("%s_%d", c.kind, time.Now().UnixNano()),
		Kind:       c.kind,
		Context:    ctx,
		URL:        url,
		Payload:    payload,
		ResponseCh: respCh,
		ErrorCh:    errCh,
		SubmitTime: time.Now(),
		Timeout:    c.timeout,
	}

	if err := c.manager.Submit(req); err != nil {
		return nil, fmt.Errorf("failed to submit: %w", err)
	}

	select {
	case resp := <-respCh:
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
		}
		return resp.Body, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Generate runs one completion against a generative endpoint and
// returns its text, implementing the generate(prompt) collaborator
// the engine hands retrieved memories to.
func (c *Client) Generate(ctx context.Context, url, prompt string) (string, error) {
	body, err := c.Call(ctx, url, map[string]interface{}{"prompt": prompt})
	if err != nil {
		return "", err
	}
	var result struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(result.Choices) > 0 {
		return result.Choices[0].Text, nil
	}
	return result.Text, nil
}
