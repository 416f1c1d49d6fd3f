package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tieredmemory/internal/config"

	"github.com/gin-gonic/gin"
)

// contains is shared across the package's handler tests.
func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}

func TestHealthHandler_ReturnsOk(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", healthHandler)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	if !contains(w.Body.String(), "ok") {
		t.Errorf("expected response to contain 'ok', got: %s", w.Body.String())
	}
	if !contains(w.Body.String(), "engine") {
		t.Errorf("expected response to report engine readiness, got: %s", w.Body.String())
	}
}

func TestConfigHandler_ReturnsEngineSettings(t *testing.T) {
	cfg := &config.Config{}
	cfg.Memory.General.EmbeddingDimension = 1536
	cfg.Memory.General.DefaultTier = "active"
	cfg.Memory.Tiers.Core.Capacity = 1000
	cfg.Memory.Tiers.Active.Capacity = 5000
	cfg.Memory.Tiers.Background.Capacity = 10000

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/config", configHandler(cfg))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/config", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !contains(body, "\"embeddingDimension\":1536") {
		t.Errorf("expected embedding dimension in response, got: %s", body)
	}
	if !contains(body, "\"defaultTier\":\"active\"") {
		t.Errorf("expected default tier in response, got: %s", body)
	}
	if !contains(body, "\"background\"") {
		t.Errorf("expected per-tier capacities in response, got: %s", body)
	}
}
