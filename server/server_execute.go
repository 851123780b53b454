package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"reportserver/database"
	"reportserver/definitions"
	"reportserver/report"
)

// handleDryRunSQL возвращает схему результата SQL без выполнения
func (s *Server) handleDryRunSQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SQLQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SQLQuery) == "" {
		s.writeJSONError(w, "sql_query is required", http.StatusBadRequest)
		return
	}
	if s.schema == nil {
		s.writeJSONError(w, "BigQuery is not configured", http.StatusServiceUnavailable)
		return
	}

	schema, err := s.schema.DryRun(r.Context(), req.SQLQuery)
	if err != nil {
		s.logError(r.Context(), "", "/dry_run_sql_for_schema", fmt.Sprintf("SQL dry run failed: %v", err))
		s.writeJSONError(w, fmt.Sprintf("SQL dry run failed: %v", err), http.StatusBadRequest)
		return
	}

	response := SchemaResponse{Schema: schema}
	if len(schema) == 0 {
		response.Message = "Dry run OK but no schema."
	}
	s.writeJSONResponse(w, response, http.StatusOK)
}

// handleSystemInstruction читает и перезаписывает системную инструкцию модели
func (s *Server) handleSystemInstruction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		text, err := s.definitions.SystemInstruction(ctx)
		if err != nil {
			s.writeStoreError(w, "Failed to load system instruction", err)
			return
		}
		s.writeJSONResponse(w, SystemInstructionPayload{SystemInstruction: text}, http.StatusOK)

	case http.MethodPut:
		var req SystemInstructionPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.SystemInstruction) == "" {
			s.writeJSONError(w, "system_instruction is required", http.StatusBadRequest)
			return
		}
		if err := s.definitions.SaveSystemInstruction(ctx, req.SystemInstruction); err != nil {
			s.writeStoreError(w, "Failed to update system instruction", err)
			return
		}
		s.logInfo(r.Context(), "", "/system_instruction", fmt.Sprintf("System instruction updated (%d chars)", len(req.SystemInstruction)))
		s.writeJSONResponse(w, MessageResponse{Message: "System instruction updated successfully."}, http.StatusOK)

	default:
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleExecuteReport выполняет запросы отчета, подставляет данные в последнюю версию шаблона
// и сохраняет результат во временном хранилище
func (s *Server) handleExecuteReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ExecuteReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReportDefinitionName == "" {
		s.writeJSONError(w, "report_definition_name is required", http.StatusBadRequest)
		return
	}

	criteria, err := report.ParseCriteria(req.FilterCriteriaJSON)
	if err != nil {
		s.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rep, err := s.definitions.Get(req.ReportDefinitionName)
	if err != nil {
		s.writeStoreError(w, "Failed to get report definition", err)
		return
	}

	ctx := r.Context()
	html, version, err := s.definitions.GetLatestHTML(ctx, rep.ReportName)
	if err != nil {
		s.writeStoreError(w, "Failed to load template", err)
		return
	}

	if s.renderer == nil {
		s.writeJSONError(w, "BigQuery is not configured", http.StatusServiceUnavailable)
		return
	}

	rendered, err := s.renderer.Render(ctx, report.RenderInput{
		Definition: rep.Definition(),
		HTML:       html,
		Criteria:   criteria,
	})
	if err != nil {
		s.logError(r.Context(), rep.ReportName, "/execute_report", fmt.Sprintf("Report execution failed: %v", err))
		s.writeStoreError(w, "Failed to execute report", err)
		return
	}

	id := s.reports.Put(rendered.HTML)
	path := "/view_generated_report/" + id
	s.logInfo(r.Context(), rep.ReportName, "/execute_report", fmt.Sprintf("Generated report %s from template version %d", id, version.Version))

	s.writeJSONResponse(w, ExecuteReportResponse{
		ReportURLPath: path,
		ReportID:      id,
		RowCounts:     rendered.RowCounts,
	}, http.StatusOK)
}

// handleViewGeneratedReport отдает сгенерированный отчет
func (s *Server) handleViewGeneratedReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/view_generated_report/"), "/")
	if id == "" {
		s.writeJSONError(w, "Report ID required", http.StatusBadRequest)
		return
	}

	html, ok := s.reports.Get(id)
	if !ok {
		s.writeJSONError(w, "Report not found or expired.", http.StatusNotFound)
		return
	}
	writeHTML(w, html)
}

// isNotFound ошибка отсутствия записи или шаблона
func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound) || errors.Is(err, definitions.ErrNoTemplate)
}
