package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"reportserver/database"
)

// handleListVersions возвращает историю версий шаблона
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request, name string) {
	versions, err := s.definitions.ListVersions(name)
	if err != nil {
		s.writeStoreError(w, "Failed to list template versions", err)
		return
	}
	s.writeJSONResponse(w, versions, http.StatusOK)
}

// handleGetVersion возвращает HTML конкретной версии
func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request, name, rawVersion string) {
	number, err := strconv.Atoi(rawVersion)
	if err != nil || number <= 0 {
		s.writeJSONError(w, "Invalid version number", http.StatusBadRequest)
		return
	}

	html, version, err := s.definitions.GetVersionHTML(r.Context(), name, number)
	if err != nil {
		s.writeStoreError(w, "Failed to get template version", err)
		return
	}

	if wantsHTML(r) {
		writeHTML(w, html)
		return
	}
	s.writeJSONResponse(w, VersionHTMLResponse{Version: version, HTML: html}, http.StatusOK)
}

// handleGetLatestTemplate возвращает HTML последней версии
func (s *Server) handleGetLatestTemplate(w http.ResponseWriter, r *http.Request, name string) {
	html, version, err := s.definitions.GetLatestHTML(r.Context(), name)
	if err != nil {
		s.writeStoreError(w, "Failed to load template", err)
		return
	}

	if wantsHTML(r) {
		writeHTML(w, html)
		return
	}
	s.writeJSONResponse(w, VersionHTMLResponse{Version: version, HTML: html}, http.StatusOK)
}

// handleEditTemplate сохраняет HTML, отредактированный вручную, как новую версию
func (s *Server) handleEditTemplate(w http.ResponseWriter, r *http.Request, name string) {
	var req EditTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.HTML) == "" {
		s.writeJSONError(w, "html is required", http.StatusBadRequest)
		return
	}

	version, err := s.definitions.SaveNewVersion(r.Context(), name, req.HTML, database.SourceEdit, req.Note, nil)
	if err != nil {
		s.writeStoreError(w, "Failed to save template", err)
		return
	}

	s.logInfo(r.Context(), name, "/template", fmt.Sprintf("Manual edit saved as version %d", version.Version))
	s.writeJSONResponse(w, VersionResponse{Message: "Template updated.", Version: version}, http.StatusOK)
}

// handleRefineTemplate дорабатывает последнюю версию моделью по инструкции
func (s *Server) handleRefineTemplate(w http.ResponseWriter, r *http.Request, name string) {
	var req RefineTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		s.writeJSONError(w, "instruction is required", http.StatusBadRequest)
		return
	}
	if s.generator == nil {
		s.writeJSONError(w, "Template generator is not configured", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	html, current, err := s.definitions.GetLatestHTML(ctx, name)
	if err != nil {
		s.writeStoreError(w, "Failed to load template", err)
		return
	}

	instruction, err := s.definitions.SystemInstruction(ctx)
	if err != nil {
		s.writeStoreError(w, "Failed to load system instruction", err)
		return
	}

	refined, err := s.generator.Refine(ctx, html, req.Instruction, instruction)
	if err != nil {
		s.logError(r.Context(), name, "/refine", fmt.Sprintf("Refinement failed: %v", err))
		s.writeGeneratorError(w, err)
		return
	}

	note := req.Note
	if note == "" {
		note = fmt.Sprintf("refined from version %d: %s", current.Version, truncateNote(req.Instruction, 200))
	}
	version, err := s.definitions.SaveNewVersion(ctx, name, refined, database.SourceRefine, note, nil)
	if err != nil {
		s.writeStoreError(w, "Failed to save refined template", err)
		return
	}

	s.logInfo(r.Context(), name, "/refine", fmt.Sprintf("Refined template saved as version %d", version.Version))
	s.writeJSONResponse(w, VersionResponse{Message: "Template refined.", Version: version}, http.StatusOK)
}

// handleRevertTemplate делает содержимое старой версии новой последней версией
func (s *Server) handleRevertTemplate(w http.ResponseWriter, r *http.Request, name string) {
	var req RevertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TargetVersion <= 0 {
		s.writeJSONError(w, "target_version must be positive", http.StatusBadRequest)
		return
	}

	version, err := s.definitions.Revert(r.Context(), name, req.TargetVersion, req.Note)
	if err != nil {
		s.writeStoreError(w, "Failed to revert template", err)
		return
	}

	s.logInfo(r.Context(), name, "/revert", fmt.Sprintf("Reverted to version %d as version %d", req.TargetVersion, version.Version))
	s.writeJSONResponse(w, VersionResponse{
		Message: fmt.Sprintf("Template reverted to version %d.", req.TargetVersion),
		Version: version,
	}, http.StatusOK)
}

func wantsHTML(r *http.Request) bool {
	return r.URL.Query().Get("format") == "html" || strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeHTML(w http.ResponseWriter, html string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

func truncateNote(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
