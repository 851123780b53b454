package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reportserver/database"
	"reportserver/definitions"
	"reportserver/generator"
	"reportserver/placeholder"
	"reportserver/report"
	"reportserver/server/middleware"
)

// SchemaProvider определяет схему результата SQL без выполнения запроса
type SchemaProvider interface {
	DryRun(ctx context.Context, sql string) ([]placeholder.FieldDescriptor, error)
}

// TemplateGenerator генерирует и дорабатывает HTML шаблоны
type TemplateGenerator interface {
	Generate(ctx context.Context, req generator.GenerateRequest) (string, error)
	Refine(ctx context.Context, currentHTML, instruction, systemInstruction string) (string, error)
}

// Dependencies внешние компоненты сервера; Schema, Data и Generator могут быть nil
type Dependencies struct {
	Definitions *definitions.Store
	Schema      SchemaProvider
	Data        report.DataSource
	Generator   TemplateGenerator
	Looks       report.LookResolver
}

// Server HTTP сервер генерации и выполнения отчетов
type Server struct {
	config       *Config
	httpServer   *http.Server
	logChan      chan LogEntry
	definitions  *definitions.Store
	schema       SchemaProvider
	data         report.DataSource
	generator    TemplateGenerator
	renderer     *report.Renderer
	reports      *report.Store
	shutdownChan chan struct{}
	startTime    time.Time
}

// NewServer создает новый сервер
func NewServer(config *Config, deps Dependencies) *Server {
	looks := deps.Looks
	if looks == nil {
		looks = report.URLTemplateResolver{Template: config.LookImageURLTemplate}
	}

	var renderer *report.Renderer
	if deps.Data != nil {
		renderer = report.NewRenderer(deps.Data, looks, config.QueryConcurrency)
	}

	return &Server{
		config:       config,
		logChan:      make(chan LogEntry, config.LogBufferSize),
		definitions:  deps.Definitions,
		schema:       deps.Schema,
		data:         deps.Data,
		generator:    deps.Generator,
		renderer:     renderer,
		reports:      report.NewStore(config.GeneratedReportTTL),
		shutdownChan: make(chan struct{}),
		startTime:    time.Now(),
	}
}

// Start запускает HTTP сервер
func (s *Server) Start() error {
	s.log(LogEntry{
		Timestamp: time.Now(),
		Level:     "INFO",
		Message:   fmt.Sprintf("Starting server on port %s", s.config.Port),
	})

	handler := s.setupMux()

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go s.cleanupReports()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// setupMux настраивает маршруты и возвращает http.Handler
// Используется как в Start(), так и в ServeHTTP() для тестов
func (s *Server) setupMux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/dry_run_sql_for_schema", s.handleDryRunSQL)
	mux.HandleFunc("/system_instruction", s.handleSystemInstruction)

	// Определения отчетов и их шаблоны
	mux.HandleFunc("/report_definitions", s.handleReportDefinitions)
	mux.HandleFunc("/report_definitions/", s.handleReportDefinitionRoutes)

	// Выполнение отчетов
	mux.HandleFunc("/execute_report", s.handleExecuteReport)
	mux.HandleFunc("/view_generated_report/", s.handleViewGeneratedReport)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			s.writeJSONError(w, "Not found", http.StatusNotFound)
			return
		}
		s.handleHealth(w, r)
	})

	// RequestID снаружи Logging: лог запроса уже видит ID
	handler := SecurityHeadersMiddleware(mux)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = middleware.CORS(s.config.AllowedOrigins)(handler)
	handler = middleware.RecoverMiddleware(handler)

	return handler
}

// ServeHTTP реализует интерфейс http.Handler для использования в тестах
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := s.setupMux()
	handler.ServeHTTP(w, r)
}

// Shutdown корректно останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	s.log(LogEntry{
		Timestamp: time.Now(),
		Level:     "INFO",
		Message:   "Shutting down server...",
	})

	close(s.shutdownChan)

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// cleanupReports периодически удаляет просроченные отчеты
func (s *Server) cleanupReports() {
	interval := s.config.GeneratedReportTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownChan:
			return
		case <-ticker.C:
			if removed := s.reports.Cleanup(); removed > 0 {
				s.logInfo(context.Background(), "", "", fmt.Sprintf("Removed %d expired generated reports", removed))
			}
		}
	}
}

// GetLogChannel возвращает канал для получения логов
func (s *Server) GetLogChannel() <-chan LogEntry {
	return s.logChan
}

// log отправляет запись в лог
func (s *Server) log(entry LogEntry) {
	select {
	case s.logChan <- entry:
	default:
		// Если канал полон, пропускаем запись
	}
	if entry.RequestID != "" {
		log.Printf("[%s] [%s] %s: %s", entry.RequestID, entry.Level, entry.Timestamp.Format("15:04:05"), entry.Message)
		return
	}
	log.Printf("[%s] %s: %s", entry.Level, entry.Timestamp.Format("15:04:05"), entry.Message)
}

func (s *Server) logInfo(ctx context.Context, reportName, endpoint, message string) {
	s.log(LogEntry{Timestamp: time.Now(), Level: "INFO", Message: message, ReportName: reportName, Endpoint: endpoint, RequestID: RequestID(ctx)})
}

func (s *Server) logError(ctx context.Context, reportName, endpoint, message string) {
	s.log(LogEntry{Timestamp: time.Now(), Level: "ERROR", Message: message, ReportName: reportName, Endpoint: endpoint, RequestID: RequestID(ctx)})
}

// handleHealth обрабатывает проверку здоровья сервера
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	components := map[string]string{
		"definitions": componentState(s.definitions != nil),
		"bigquery":    componentState(s.schema != nil && s.data != nil),
		"generator":   componentState(s.generator != nil),
	}
	if client, ok := s.generator.(*generator.Client); ok && client != nil {
		components["generator_circuit_breaker"] = client.BreakerState()
	}

	s.writeJSONResponse(w, HealthResponse{
		Status:       "healthy",
		Time:         time.Now().Format(time.RFC3339),
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		Components:   components,
		CachedReport: s.reports.Len(),
	}, http.StatusOK)
}

func componentState(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

// writeJSONResponse записывает JSON ответ
func (s *Server) writeJSONResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	middleware.WriteJSONResponse(w, data, statusCode)
}

// writeJSONError записывает JSON ошибку
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	middleware.WriteJSONError(w, message, statusCode)
}

// writeJSONErrorDetails записывает JSON ошибку с подробностями
func (s *Server) writeJSONErrorDetails(w http.ResponseWriter, message string, details interface{}, statusCode int) {
	middleware.WriteJSONErrorDetails(w, message, details, statusCode)
}

// writeStoreError переводит ошибки хранилища в HTTP статус
func (s *Server) writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case isNotFound(err):
		s.writeJSONError(w, fmt.Sprintf("%s: %v", message, err), http.StatusNotFound)
	case errors.Is(err, database.ErrReportExists):
		s.writeJSONError(w, fmt.Sprintf("%s: %v", message, err), http.StatusConflict)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeJSONError(w, fmt.Sprintf("%s: %v", message, err), http.StatusGatewayTimeout)
	default:
		s.writeJSONError(w, fmt.Sprintf("%s: %v", message, err), http.StatusInternalServerError)
	}
}

// splitPath разбивает экранированный путь после префикса на декодированные сегменты
func splitPath(r *http.Request, prefix string) ([]string, error) {
	rest := strings.TrimPrefix(r.URL.EscapedPath(), prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil, nil
	}

	raw := strings.Split(rest, "/")
	segments := make([]string, 0, len(raw))
	for _, segment := range raw {
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q: %w", segment, err)
		}
		segments = append(segments, decoded)
	}
	return segments, nil
}
