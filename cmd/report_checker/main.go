package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"reportserver/placeholder"
)

// CheckResult результат проверки одного отчета
type CheckResult struct {
	ReportName   string         `json:"report_name"`
	Status       int            `json:"status"`
	ResponseTime time.Duration  `json:"response_time_ms"`
	ReportPath   string         `json:"report_path,omitempty"`
	RowCounts    map[string]int `json:"row_counts,omitempty"`
	Unresolved   []string       `json:"unresolved_placeholders,omitempty"`
	Error        string         `json:"error,omitempty"`
	Attempts     int            `json:"attempts"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Valid отчет выполнен и все плейсхолдеры заменены
func (r CheckResult) Valid() bool {
	return r.Error == "" && r.Status == http.StatusOK && len(r.Unresolved) == 0
}

// Summary сводка проверки
type Summary struct {
	StartTime  time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration_seconds"`
	Healthy    bool          `json:"server_healthy"`
	Results    []CheckResult `json:"results"`
	Success    int           `json:"success"`
	Unresolved int           `json:"with_unresolved_placeholders"`
	Failed     int           `json:"failed"`
}

type checker struct {
	baseURL    string
	client     *http.Client
	filters    string
	maxRetries int
	retryDelay time.Duration
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Адрес сервера отчетов")
	reports := flag.String("reports", "", "Имена отчетов через запятую (по умолчанию все определения)")
	filters := flag.String("filters", "", "JSON критериев фильтрации для execute_report")
	outputFile := flag.String("output", "", "Файл для сохранения результата (JSON)")
	webhook := flag.String("webhook", "", "URL для отправки результата при ошибках")
	timeout := flag.Duration("timeout", 2*time.Minute, "Таймаут одного запроса")
	maxRetries := flag.Int("retries", 3, "Максимальное количество попыток")
	concurrent := flag.Int("concurrent", 3, "Количество одновременных проверок")
	flag.Parse()

	c := &checker{
		baseURL:    strings.TrimRight(*serverURL, "/"),
		client:     &http.Client{Timeout: *timeout},
		filters:    *filters,
		maxRetries: *maxRetries,
		retryDelay: time.Second,
	}

	ctx := context.Background()
	summary := &Summary{StartTime: time.Now()}

	if err := c.checkHealth(ctx); err != nil {
		log.Fatalf("🔴 Сервер недоступен: %v", err)
	}
	summary.Healthy = true

	names := splitNames(*reports)
	if len(names) == 0 {
		var err error
		names, err = c.listReports(ctx)
		if err != nil {
			log.Fatalf("Ошибка получения списка отчетов: %v", err)
		}
	}
	if len(names) == 0 {
		log.Println("Нет отчетов для проверки")
		return
	}
	log.Printf("🚀 Проверка %d отчетов на %s", len(names), c.baseURL)

	summary.Results = c.checkAll(ctx, names, *concurrent)
	summary.Duration = time.Since(summary.StartTime)
	for _, result := range summary.Results {
		switch {
		case result.Valid():
			summary.Success++
		case result.Error == "" && len(result.Unresolved) > 0:
			summary.Unresolved++
		default:
			summary.Failed++
		}
	}

	printSummary(summary)

	if *outputFile != "" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err == nil {
			err = os.WriteFile(*outputFile, data, 0644)
		}
		if err != nil {
			log.Printf("⚠️  Ошибка сохранения результата: %v", err)
		}
	}

	if summary.Failed+summary.Unresolved > 0 {
		if *webhook != "" {
			if err := sendWebhook(ctx, c.client, *webhook, summary); err != nil {
				log.Printf("⚠️  Ошибка отправки уведомления: %v", err)
			}
		}
		os.Exit(1)
	}
}

func (c *checker) checkHealth(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func (c *checker) listReports(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/report_definitions", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list returned %d", resp.StatusCode)
	}

	var defs []struct {
		ReportName            string `json:"report_name"`
		LatestTemplateVersion int    `json:"latest_template_version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&defs); err != nil {
		return nil, fmt.Errorf("failed to decode report list: %w", err)
	}

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if def.LatestTemplateVersion > 0 {
			names = append(names, def.ReportName)
		}
	}
	return names, nil
}

// checkAll проверяет отчеты с ограничением параллельности
func (c *checker) checkAll(ctx context.Context, names []string, concurrent int) []CheckResult {
	results := make([]CheckResult, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrent)
	for i, name := range names {
		g.Go(func() error {
			result := c.checkReport(gctx, name)
			mu.Lock()
			results[i] = result
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return results
}

func (c *checker) checkReport(ctx context.Context, name string) CheckResult {
	result := CheckResult{ReportName: name, Timestamp: time.Now()}

	body, _ := json.Marshal(map[string]string{
		"report_definition_name": name,
		"filter_criteria_json":   c.filters,
	})

	var exec struct {
		ReportURLPath string         `json:"report_url_path"`
		RowCounts     map[string]int `json:"row_counts"`
	}

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		result.Attempts = attempt
		start := time.Now()
		resp, err := c.do(ctx, http.MethodPost, "/execute_report", body)
		result.ResponseTime = time.Since(start)
		if err != nil {
			result.Error = err.Error()
			if attempt < c.maxRetries {
				log.Printf("⚠️  [%s] Попытка %d/%d: %v", name, attempt, c.maxRetries, err)
				time.Sleep(c.retryDelay)
				continue
			}
			return result
		}

		result.Status = resp.StatusCode
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			result.Error = strings.TrimSpace(string(data))
			if attempt < c.maxRetries && shouldRetry(resp.StatusCode) {
				log.Printf("⚠️  [%s] Попытка %d/%d: %d", name, attempt, c.maxRetries, resp.StatusCode)
				time.Sleep(c.retryDelay)
				continue
			}
			return result
		}
		if err := json.Unmarshal(data, &exec); err != nil {
			result.Error = fmt.Sprintf("invalid execute response: %v", err)
			return result
		}
		result.Error = ""
		break
	}

	result.ReportPath = exec.ReportURLPath
	result.RowCounts = exec.RowCounts

	resp, err := c.do(ctx, http.MethodGet, exec.ReportURLPath, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()
	html, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		result.Status = resp.StatusCode
		result.Error = fmt.Sprintf("failed to fetch rendered report: %d", resp.StatusCode)
		return result
	}

	result.Unresolved = unresolvedTags(string(html))
	if result.Valid() {
		log.Printf("✅ [%s] %v (%.2fms)", name, result.RowCounts, float64(result.ResponseTime.Nanoseconds())/1e6)
	} else {
		log.Printf("❌ [%s] остались плейсхолдеры: %s", name, strings.Join(result.Unresolved, ", "))
	}
	return result
}

// unresolvedTags плейсхолдеры, оставшиеся в готовом отчете
func unresolvedTags(html string) []string {
	found := placeholder.Discover(html, nil, nil, nil)
	tags := make([]string, 0, len(found.Placeholders))
	for _, token := range found.Placeholders {
		tags = append(tags, token.OriginalTag)
	}
	return tags
}

func (c *checker) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	target, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Report-Checker/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.client.Do(req)
}

func shouldRetry(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

func splitNames(value string) []string {
	var names []string
	for _, name := range strings.Split(value, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func printSummary(s *Summary) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("📊 ПРОВЕРКА ОТЧЕТОВ")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("⏱️  Время выполнения: %v\n", s.Duration.Round(time.Second))
	fmt.Printf("   ✅ Успешные: %d\n", s.Success)
	fmt.Printf("   ⚠️  С незамененными плейсхолдерами: %d\n", s.Unresolved)
	fmt.Printf("   🔴 Ошибки: %d\n", s.Failed)

	for _, result := range s.Results {
		if result.Valid() {
			continue
		}
		info := result.Error
		if info == "" {
			info = strings.Join(result.Unresolved, ", ")
		}
		fmt.Printf("   ❌ %s - %s (попыток: %d)\n", result.ReportName, info, result.Attempts)
	}
	fmt.Println()
}

// sendWebhook отправляет сводку POST запросом
func sendWebhook(ctx context.Context, client *http.Client, target string, s *Summary) error {
	payload, err := json.Marshal(map[string]interface{}{
		"text":    fmt.Sprintf("Report check: %d ok, %d unresolved, %d failed", s.Success, s.Unresolved, s.Failed),
		"summary": s,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
