// internal/memory/embedder.go
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmbedTransport abstracts how the embedder reaches its upstream
// endpoint. The queued model client satisfies it, which puts every
// embedding call behind the shared upstream concurrency bound; a plain
// HTTP client is the fallback when no queue is wired in.
type EmbedTransport interface {
	Call(ctx context.Context, url string, payload map[string]interface{}) ([]byte, error)
}

// Embedder calls the external embedding provider, converting text into
// a fixed-dimension dense vector.
type Embedder struct {
	apiURL    string
	transport EmbedTransport
	client    *http.Client
}

// NewEmbedder creates an embedder that calls the endpoint directly
// with a 10s per-operation timeout.
func NewEmbedder(apiURL string) *Embedder {
	return &Embedder{
		apiURL: apiURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewQueuedEmbedder creates an embedder that routes every call through
// the given transport instead of its own HTTP client.
func NewQueuedEmbedder(apiURL string, t EmbedTransport) *Embedder {
	e := NewEmbedder(apiURL)
	e.transport = t
	return e
}

// Embed converts text to a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, newErr("Embed", KindInvalidInput, fmt.Errorf("empty text"))
	}

	payload := map[string]interface{}{
		"input": text,
		"model": "text-embedding-ada-002",
	}

	var body []byte
	var err error
	if e.transport != nil {
		body, err = e.transport.Call(ctx, e.apiURL, payload)
		if err != nil {
			return nil, newErr("Embed", KindTransient, err)
		}
	} else {
		body, err = e.post(ctx, payload)
		if err != nil {
			return nil, err
		}
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, newErr("Embed", KindTransient, fmt.Errorf("decode response: %w", err))
	}
	if len(result.Data) == 0 {
		return nil, newErr("Embed", KindTransient, fmt.Errorf("no embeddings returned"))
	}
	return result.Data[0].Embedding, nil
}

func (e *Embedder) post(ctx context.Context, payload map[string]interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, newErr("Embed", KindInternal, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, newErr("Embed", KindInternal, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, newErr("Embed", KindTransient, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, newErr("Embed", KindTransient, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body)))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newErr("Embed", KindTransient, fmt.Errorf("read response: %w", err))
	}
	return body, nil
}
