package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"maritime-tutor/internal/config"
	"github.com/gin-gonic/gin"
)

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
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("expected response to contain 'ok', got: %s", w.Body.String())
	}
}

func TestConfigHandler_ReturnsConfig(t *testing.T) {
	cfg := &config.Config{
		Generative: config.LLMConfig{Name: "gpt-oss-120b", URL: "http://llm1"},
		Embedding:  config.EmbeddingConfig{Name: "nomic-embed-text", URL: "http://embed1"},
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/config", configHandler(cfg))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/config", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "gpt-oss-120b") {
		t.Errorf("expected response to contain generative model name, got: %s", w.Body.String())
	}
}
