package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_CallRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2]}]}`))
	}))
	defer srv.Close()

	m := NewManager(DefaultConfig(), nil)
	defer m.Stop()
	c := NewClient(m, KindEmbedding, 5*time.Second)

	body, err := c.Call(context.Background(), srv.URL, map[string]interface{}{"input": "hello"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected a non-empty response body")
	}

	metrics := m.GetMetrics()
	if metrics.EmbeddingEnqueued != 1 {
		t.Errorf("EmbeddingEnqueued = %d, want 1", metrics.EmbeddingEnqueued)
	}
}

func TestClient_CallSurfacesUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := NewManager(DefaultConfig(), nil)
	defer m.Stop()
	c := NewClient(m, KindGeneration, 5*time.Second)

	if _, err := c.Call(context.Background(), srv.URL, map[string]interface{}{"prompt": "x"}); err == nil {
		t.Fatal("expected an error for a non-200 upstream status")
	}
}

func TestClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"text":"a generated answer"}]}`))
	}))
	defer srv.Close()

	m := NewManager(DefaultConfig(), nil)
	defer m.Stop()
	c := NewClient(m, KindGeneration, 5*time.Second)

	text, err := c.Generate(context.Background(), srv.URL, "answer me")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "a generated answer" {
		t.Errorf("Generate = %q, want %q", text, "a generated answer")
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewCircuitBreaker(2, time.Minute)
	if b.IsOpen() {
		t.Fatal("breaker should start closed")
	}
	fail := func() error { return context.DeadlineExceeded }
	b.Call(fail)
	b.Call(fail)
	if !b.IsOpen() {
		t.Error("breaker should open after the failure limit")
	}
	b2 := NewCircuitBreaker(2, time.Minute)
	b2.Call(fail)
	b2.Call(func() error { return nil })
	if b2.IsOpen() {
		t.Error("a success should reset the failure streak")
	}
}
