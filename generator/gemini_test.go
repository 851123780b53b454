package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(endpoint string) *Client {
	return NewClient(Config{
		APIKey:   "test-key",
		Model:    "test-model",
		Endpoint: endpoint,
		Timeout:  5 * time.Second,
		Retry: RetryConfig{
			MaxRetries:        2,
			InitialDelay:      10 * time.Millisecond,
			MaxDelay:          50 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
		RequestsPerSecond: 1000,
		Burst:             100,
	})
}

func writeCandidate(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{
				"content": map[string]interface{}{
					"parts": []interface{}{map[string]interface{}{"text": text}},
				},
			},
		},
	}
	json.NewEncoder(w).Encode(resp)
}

func TestClient_Generate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/style.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("PNGDATA"))
	})

	var captured geminiRequest
	mux.HandleFunc("/models/test-model:generateContent", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeCandidate(w, "```html\n<html><body>{{TABLE_ROWS_sales}}</body></html>\n```")
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL + "/models")
	html, err := client.Generate(context.Background(), GenerateRequest{
		Prompt:            "Sales report",
		ImageURL:          server.URL + "/style.png",
		SystemInstruction: "be terse",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if html != "<html><body>{{TABLE_ROWS_sales}}</body></html>" {
		t.Errorf("Unexpected HTML: %q", html)
	}

	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "be terse" {
		t.Errorf("System instruction was not sent: %+v", captured.SystemInstruction)
	}
	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 2 {
		t.Fatalf("Expected one content with text and image parts, got %+v", captured.Contents)
	}
	img := captured.Contents[0].Parts[1].InlineData
	if img == nil || img.MimeType != "image/png" || img.Data != "UE5HREFUQQ==" {
		t.Errorf("Unexpected inline image: %+v", img)
	}
	if captured.GenerationConfig == nil || captured.GenerationConfig.MaxOutputTokens != 65535 {
		t.Errorf("Unexpected generation config: %+v", captured.GenerationConfig)
	}
}

func TestClient_Generate_Retry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"code":500,"message":"internal"}}`))
			return
		}
		writeCandidate(w, "<html><body>ok</body></html>")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	html, err := client.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("Expected no error after retry, got: %v", err)
	}
	if html != "<html><body>ok</body></html>" {
		t.Errorf("Unexpected HTML: %q", html)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestClient_Generate_ClientErrorNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "p"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got: %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "API key not valid" {
		t.Errorf("Unexpected API error: %+v", apiErr)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected 1 attempt for 4xx, got %d", attempts)
	}
	if client.BreakerState() != "closed" {
		t.Errorf("4xx should not trip the breaker, state: %s", client.BreakerState())
	}
}

func TestClient_Generate_EmptyOutputFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCandidate(w, "```html\n```")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	html, err := client.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if html != FallbackHTML {
		t.Errorf("Expected fallback HTML, got %q", html)
	}
}

func TestClient_Generate_NotImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "p", ImageURL: server.URL + "/page"})
	if !errors.Is(err, ErrNotImage) {
		t.Errorf("Expected ErrNotImage, got: %v", err)
	}
}

func TestClient_Refine(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Contents[0].Parts[0].Text
		writeCandidate(w, "<html><body>refined</body></html>")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	html, err := client.Refine(context.Background(), "<html><body>{{TOP_region}}</body></html>", "make the title blue", "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if html != "<html><body>refined</body></html>" {
		t.Errorf("Unexpected HTML: %q", html)
	}
	if !strings.Contains(prompt, "make the title blue") || !strings.Contains(prompt, "{{TOP_region}}") {
		t.Errorf("Refine prompt lacks instruction or template: %s", prompt)
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.circuitBreaker = NewCircuitBreaker(2, 1, time.Minute)

	if _, err := client.Generate(context.Background(), GenerateRequest{Prompt: "p"}); err == nil {
		t.Fatal("Expected error from failing server")
	}
	if client.BreakerState() != "open" {
		t.Fatalf("Expected open breaker, got %s", client.BreakerState())
	}

	before := atomic.LoadInt32(&attempts)
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got: %v", err)
	}
	if atomic.LoadInt32(&attempts) != before {
		t.Error("Open breaker must not reach the server")
	}
}

func TestClient_APIKeyNotInURLOrErrors(t *testing.T) {
	var rawQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		writeCandidate(w, "<html>ok</html>")
	}))
	client := newTestClient(server.URL)
	client.config.APIKey = "SECRET-GEMINI-KEY"

	if _, err := client.Refine(context.Background(), "<html></html>", "make it blue", ""); err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if strings.Contains(rawQuery, "SECRET-GEMINI-KEY") {
		t.Errorf("API key sent in query string: %s", rawQuery)
	}

	// Транспортная ошибка содержит URL запроса
	server.Close()
	client.config.Retry.MaxRetries = 0
	_, err := client.Refine(context.Background(), "<html></html>", "make it blue", "")
	if err == nil {
		t.Fatal("Expected error from closed server")
	}
	if strings.Contains(err.Error(), "SECRET-GEMINI-KEY") {
		t.Errorf("API key leaked in error: %v", err)
	}
}
