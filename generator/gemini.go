// Package generator получает HTML шаблоны отчетов от модели Gemini
package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultEndpoint базовый адрес Gemini API
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

// DefaultModel модель по умолчанию
const DefaultModel = "gemini-2.5-pro-preview-05-06"

// ErrCircuitOpen вызовы модели временно заблокированы
var ErrCircuitOpen = errors.New("circuit breaker is open")

// APIError ответ модели с кодом 4xx или 5xx
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Gemini API returned %d: %s", e.StatusCode, e.Message)
}

// RetryConfig конфигурация повторных попыток
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// Config параметры клиента Gemini
type Config struct {
	APIKey      string
	Model       string
	Endpoint    string
	Timeout     time.Duration
	Temperature float64
	TopP        float64
	MaxTokens   int
	Retry       RetryConfig
	// RequestsPerSecond и Burst задают rate limiter (по умолчанию 1/сек, burst 5)
	RequestsPerSecond float64
	Burst             int
}

// Client клиент Gemini generateContent с лимитом частоты и circuit breaker
type Client struct {
	config         Config
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	circuitBreaker *CircuitBreaker
}

// NewClient создает клиент с настройками по умолчанию для незаданных полей
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.95
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 65535
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = RetryConfig{
			MaxRetries:        3,
			InitialDelay:      500 * time.Millisecond,
			MaxDelay:          10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	}
	if cfg.Retry.BackoffMultiplier < 1 {
		cfg.Retry.BackoffMultiplier = 1
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.APIKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set")
	}

	return &Client{
		config:         cfg,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		rateLimiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		circuitBreaker: NewCircuitBreaker(5, 1, 30*time.Second),
	}
}

// BreakerState состояние circuit breaker для health
func (c *Client) BreakerState() string {
	return c.circuitBreaker.State().String()
}

// GenerateRequest запрос генерации нового шаблона
type GenerateRequest struct {
	Prompt            string
	ImageURL          string
	SystemInstruction string
}

// Generate скачивает изображение стиля и просит модель сгенерировать HTML шаблон
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	parts := []geminiPart{{Text: req.Prompt}}
	if req.ImageURL != "" {
		img, err := FetchImage(ctx, c.httpClient, req.ImageURL)
		if err != nil {
			return "", err
		}
		parts = append(parts, geminiPart{InlineData: &geminiBlob{
			MimeType: img.MimeType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}
	return c.complete(ctx, req.SystemInstruction, parts)
}

// Refine просит модель изменить текущий HTML по инструкции
func (c *Client) Refine(ctx context.Context, currentHTML, instruction, systemInstruction string) (string, error) {
	prompt := BuildRefinePrompt(currentHTML, instruction)
	return c.complete(ctx, systemInstruction, []geminiPart{{Text: prompt}})
}

func (c *Client) complete(ctx context.Context, systemInstruction string, parts []geminiPart) (string, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			Temperature:     c.config.Temperature,
			TopP:            c.config.TopP,
			MaxOutputTokens: c.config.MaxTokens,
			CandidateCount:  1,
		},
	}
	if strings.TrimSpace(systemInstruction) != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemInstruction}}}
	}

	text, err := c.callWithRetry(ctx, body)
	if err != nil {
		return "", err
	}

	html := StripCodeFences(text)
	if strings.TrimSpace(html) == "" {
		log.Printf("Gemini returned empty content, using fallback HTML")
		return FallbackHTML, nil
	}
	return html, nil
}

// callWithRetry повторяет транспортные ошибки и 5xx с экспоненциальной задержкой; 4xx не повторяются
func (c *Client) callWithRetry(ctx context.Context, body geminiRequest) (string, error) {
	if !c.circuitBreaker.canProceed() {
		return "", fmt.Errorf("%w (state: %s), model calls are temporarily blocked", ErrCircuitOpen, c.circuitBreaker.State())
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	retry := c.config.Retry
	delay := retry.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("Retry attempt %d/%d for Gemini after %v", attempt, retry.MaxRetries, delay)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("context cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * retry.BackoffMultiplier)
			if delay > retry.MaxDelay {
				delay = retry.MaxDelay
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter error: %w", err)
		}

		start := time.Now()
		text, err := c.call(ctx, payload)
		if err == nil {
			c.circuitBreaker.recordSuccess()
			log.Printf("Gemini call succeeded (model: %s, duration: %v, chars: %d)", c.config.Model, time.Since(start), len(text))
			return text, nil
		}

		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			log.Printf("Gemini client error %d, not retrying", apiErr.StatusCode)
			break
		}
		c.circuitBreaker.recordFailure()
		log.Printf("Gemini call failed (attempt %d/%d): %v", attempt+1, retry.MaxRetries+1, err)
	}

	return "", fmt.Errorf("all retry attempts failed: %w", lastErr)
}

func (c *Client) call(ctx context.Context, payload []byte) (string, error) {
	// Ключ передается заголовком: URL попадает в тексты ошибок транспорта
	url := fmt.Sprintf("%s/%s:generateContent", c.config.Endpoint, c.config.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed geminiResponse
	jsonErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		message := truncate(string(raw), 200)
		if jsonErr == nil && parsed.Error != nil {
			message = parsed.Error.Message
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: message}
	}
	if jsonErr != nil {
		return "", fmt.Errorf("failed to parse Gemini response: %w", jsonErr)
	}

	if len(parsed.Candidates) == 0 {
		log.Printf("Gemini response has no candidates")
		return "", nil
	}

	var b strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

type geminiRequest struct {
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	Contents          []geminiContent   `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	CandidateCount  int     `json:"candidateCount"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
