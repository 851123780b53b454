package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"reportserver/database"
	"reportserver/definitions"
	"reportserver/generator"
	"reportserver/placeholder"
)

// handleReportDefinitions обрабатывает /report_definitions: список и создание/обновление
func (s *Server) handleReportDefinitions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListReportDefinitions(w, r)
	case http.MethodPost:
		s.handleUpsertReportDefinition(w, r)
	default:
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleReportDefinitionRoutes обрабатывает маршруты /report_definitions/{name}/...
func (s *Server) handleReportDefinitionRoutes(w http.ResponseWriter, r *http.Request) {
	segments, err := splitPath(r, "/report_definitions/")
	if err != nil {
		s.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(segments) == 0 || segments[0] == "" {
		s.writeJSONError(w, "Report name required", http.StatusBadRequest)
		return
	}

	name := segments[0]
	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetReportDefinition(w, r, name)
		case http.MethodPut:
			s.handleUpdateReportConfig(w, r, name)
		default:
			s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	action := segments[1]
	switch {
	case action == "discover_placeholders" && len(segments) == 2:
		s.requireMethod(w, r, http.MethodGet, func() { s.handleDiscoverPlaceholders(w, r, name) })
	case action == "finalize_template" && len(segments) == 2:
		s.requireMethod(w, r, http.MethodPost, func() { s.handleFinalizeTemplate(w, r, name) })
	case action == "mappings" && len(segments) == 2:
		s.requireMethod(w, r, http.MethodPut, func() { s.handleSaveMappings(w, r, name) })
	case action == "refine" && len(segments) == 2:
		s.requireMethod(w, r, http.MethodPost, func() { s.handleRefineTemplate(w, r, name) })
	case action == "template" && len(segments) == 2:
		switch r.Method {
		case http.MethodGet:
			s.handleGetLatestTemplate(w, r, name)
		case http.MethodPut:
			s.handleEditTemplate(w, r, name)
		default:
			s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case action == "versions" && len(segments) == 2:
		s.requireMethod(w, r, http.MethodGet, func() { s.handleListVersions(w, r, name) })
	case action == "versions" && len(segments) == 3:
		s.requireMethod(w, r, http.MethodGet, func() { s.handleGetVersion(w, r, name, segments[2]) })
	case action == "revert" && len(segments) == 2:
		s.requireMethod(w, r, http.MethodPost, func() { s.handleRevertTemplate(w, r, name) })
	default:
		s.writeJSONError(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string, handle func()) {
	if r.Method != method {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	handle()
}

// handleListReportDefinitions возвращает все определения отчетов
func (s *Server) handleListReportDefinitions(w http.ResponseWriter, r *http.Request) {
	reports, err := s.definitions.List()
	if err != nil {
		s.writeStoreError(w, "Failed to list report definitions", err)
		return
	}
	s.writeJSONResponse(w, reports, http.StatusOK)
}

// handleGetReportDefinition возвращает определение и последнюю версию шаблона
func (s *Server) handleGetReportDefinition(w http.ResponseWriter, r *http.Request, name string) {
	rep, err := s.definitions.Get(name)
	if err != nil {
		s.writeStoreError(w, "Failed to get report definition", err)
		return
	}

	response := ReportDefinitionResponse{Report: rep}
	if rep.LatestTemplateVersion > 0 {
		versions, err := s.definitions.ListVersions(name)
		if err != nil {
			s.writeStoreError(w, "Failed to get template versions", err)
			return
		}
		if len(versions) > 0 {
			response.LatestVersion = versions[0]
		}
	}
	s.writeJSONResponse(w, response, http.StatusOK)
}

// handleUpsertReportDefinition определяет схемы, генерирует шаблон и сохраняет его как новую версию.
// Существующее определение обновляется, новое создается.
func (s *Server) handleUpsertReportDefinition(w http.ResponseWriter, r *http.Request) {
	var cfg definitions.ReportConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		s.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.schema == nil {
		s.writeJSONError(w, "BigQuery is not configured", http.StatusServiceUnavailable)
		return
	}
	if s.generator == nil {
		s.writeJSONError(w, "Template generator is not configured", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	s.logInfo(r.Context(), cfg.ReportName, "/report_definitions", "Upserting report definition")

	for i := range cfg.DataTables {
		table := &cfg.DataTables[i]
		schema, err := s.schema.DryRun(ctx, table.SQLQuery)
		if err != nil {
			s.logError(r.Context(), cfg.ReportName, "/report_definitions", fmt.Sprintf("SQL dry run failed for table %s: %v", table.TablePlaceholderName, err))
			s.writeJSONError(w, fmt.Sprintf("SQL dry run failed for table %s: %v", table.TablePlaceholderName, err), http.StatusBadRequest)
			return
		}
		table.Schema = schema
	}

	instruction, err := s.definitions.SystemInstruction(ctx)
	if err != nil {
		s.writeStoreError(w, "Failed to load system instruction", err)
		return
	}

	prompt := generator.BuildPrompt(generator.PromptInput{
		Prompt:          cfg.Prompt,
		OptimizedPrompt: cfg.OptimizedPrompt,
		HeaderText:      cfg.HeaderText,
		FooterText:      cfg.FooterText,
		DataTables:      cfg.DataTables,
		LookConfigs:     cfg.LookConfigs,
		FilterConfigs:   cfg.FilterConfigs,
	})

	html, err := s.generator.Generate(ctx, generator.GenerateRequest{
		Prompt:            prompt,
		ImageURL:          cfg.ImageURL,
		SystemInstruction: instruction,
	})
	if err != nil {
		s.logError(r.Context(), cfg.ReportName, "/report_definitions", fmt.Sprintf("Template generation failed: %v", err))
		s.writeGeneratorError(w, err)
		return
	}

	status := http.StatusCreated
	_, err = s.definitions.Get(cfg.ReportName)
	switch {
	case err == nil:
		status = http.StatusOK
		_, err = s.definitions.UpdateConfig(cfg)
	case errors.Is(err, database.ErrNotFound):
		_, err = s.definitions.Create(cfg)
	}
	if err != nil {
		s.writeStoreError(w, "Failed to save report definition", err)
		return
	}

	version, err := s.definitions.SaveNewVersion(ctx, cfg.ReportName, html, database.SourceGenerate, "", nil)
	if err != nil {
		s.writeStoreError(w, "Failed to save template", err)
		return
	}

	rep, err := s.definitions.Get(cfg.ReportName)
	if err != nil {
		s.writeStoreError(w, "Failed to get report definition", err)
		return
	}

	s.logInfo(r.Context(), cfg.ReportName, "/report_definitions", fmt.Sprintf("Report definition saved with template version %d", version.Version))
	s.writeJSONResponse(w, ReportDefinitionResponse{Report: rep, LatestVersion: version}, status)
}

// handleUpdateReportConfig заменяет конфигурацию без генерации нового шаблона
func (s *Server) handleUpdateReportConfig(w http.ResponseWriter, r *http.Request, name string) {
	var cfg definitions.ReportConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if cfg.ReportName != "" && cfg.ReportName != name {
		s.writeJSONError(w, "report_name cannot be changed", http.StatusBadRequest)
		return
	}
	cfg.ReportName = name
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		s.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Таблицы без схемы получают ее пробным запуском
	for i := range cfg.DataTables {
		table := &cfg.DataTables[i]
		if len(table.Schema) > 0 || s.schema == nil {
			continue
		}
		schema, err := s.schema.DryRun(r.Context(), table.SQLQuery)
		if err != nil {
			s.writeJSONError(w, fmt.Sprintf("SQL dry run failed for table %s: %v", table.TablePlaceholderName, err), http.StatusBadRequest)
			return
		}
		table.Schema = schema
	}

	rep, err := s.definitions.UpdateConfig(cfg)
	if err != nil {
		s.writeStoreError(w, "Failed to update report definition", err)
		return
	}
	s.writeJSONResponse(w, ReportDefinitionResponse{Report: rep}, http.StatusOK)
}

// handleDiscoverPlaceholders сканирует последнюю версию шаблона
func (s *Server) handleDiscoverPlaceholders(w http.ResponseWriter, r *http.Request, name string) {
	rep, err := s.definitions.Get(name)
	if err != nil {
		s.writeStoreError(w, "Failed to get report definition", err)
		return
	}

	html, version, err := s.definitions.GetLatestHTML(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, "Failed to load template", err)
		return
	}

	discovery := placeholder.Discover(html, rep.Schema(), rep.LookConfigs, rep.FilterConfigs)
	mappings := rep.PlaceholderMappings
	if mappings == nil {
		mappings = []placeholder.Decision{}
	}

	s.writeJSONResponse(w, DiscoverResponse{
		ReportName:      name,
		TemplateVersion: version.Version,
		TemplateFound:   discovery.TemplateFound,
		ErrorMessage:    discovery.ErrorMessage,
		Placeholders:    discovery.Placeholders,
		CurrentMappings: mappings,
	}, http.StatusOK)
}

// handleFinalizeTemplate применяет решения к последней версии и сохраняет результат как новую версию
func (s *Server) handleFinalizeTemplate(w http.ResponseWriter, r *http.Request, name string) {
	var req FinalizeTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Проверка до любых чтений и записей: неверный набор не создает версию
	if err := placeholder.Validate(req.Mappings); err != nil {
		s.writeDecisionError(w, err)
		return
	}

	ctx := r.Context()
	html, current, err := s.definitions.GetLatestHTML(ctx, name)
	if err != nil {
		s.writeStoreError(w, "Failed to load template", err)
		return
	}

	finalized, err := placeholder.Apply(html, req.Mappings, placeholder.ApplyOptions{RawStaticText: s.config.AllowRawStaticText})
	if err != nil {
		s.writeDecisionError(w, err)
		return
	}

	note := req.Note
	if note == "" {
		note = fmt.Sprintf("finalized from version %d", current.Version)
	}
	version, err := s.definitions.SaveNewVersion(ctx, name, finalized, database.SourceFinalize, note, req.Mappings)
	if err != nil {
		s.writeStoreError(w, "Failed to save finalized template", err)
		return
	}

	s.logInfo(r.Context(), name, "/finalize_template", fmt.Sprintf("Applied %d mappings, template version %d", len(req.Mappings), version.Version))
	s.writeJSONResponse(w, VersionResponse{
		Message: fmt.Sprintf("Template for report '%s' finalized and mappings saved.", name),
		Version: version,
	}, http.StatusOK)
}

// handleSaveMappings сохраняет решения без изменения шаблона
func (s *Server) handleSaveMappings(w http.ResponseWriter, r *http.Request, name string) {
	var req FinalizeTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := placeholder.Validate(req.Mappings); err != nil {
		s.writeDecisionError(w, err)
		return
	}
	if err := s.definitions.SaveMappings(name, req.Mappings); err != nil {
		s.writeStoreError(w, "Failed to save placeholder mappings", err)
		return
	}
	s.writeJSONResponse(w, MessageResponse{Message: "Placeholder mappings saved."}, http.StatusOK)
}

func (s *Server) writeDecisionError(w http.ResponseWriter, err error) {
	var decisionErr *placeholder.DecisionError
	if errors.As(err, &decisionErr) {
		s.writeJSONErrorDetails(w, err.Error(), decisionErr, http.StatusBadRequest)
		return
	}
	s.writeJSONError(w, err.Error(), http.StatusBadRequest)
}

// writeGeneratorError переводит ошибки модели в HTTP статус
func (s *Server) writeGeneratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, generator.ErrNotImage):
		s.writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, generator.ErrCircuitOpen):
		s.writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeJSONError(w, fmt.Sprintf("Template generation timed out: %v", err), http.StatusGatewayTimeout)
	default:
		s.writeJSONError(w, fmt.Sprintf("Template generation failed: %v", err), http.StatusBadGateway)
	}
}
