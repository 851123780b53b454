package server

import (
	"time"

	"reportserver/database"
	"reportserver/definitions"
	"reportserver/placeholder"
)

// LogEntry запись лога сервера
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	ReportName string    `json:"report_name,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

// HealthResponse ответ проверки здоровья
type HealthResponse struct {
	Status       string            `json:"status"`
	Time         string            `json:"time"`
	Uptime       string            `json:"uptime"`
	Components   map[string]string `json:"components"`
	CachedReport int               `json:"cached_reports"`
}

// SQLQueryRequest запрос пробного выполнения SQL
type SQLQueryRequest struct {
	SQLQuery string `json:"sql_query"`
}

// SchemaResponse схема результата пробного выполнения
type SchemaResponse struct {
	Schema  []placeholder.FieldDescriptor `json:"schema"`
	Message string                        `json:"message,omitempty"`
}

// SystemInstructionPayload системная инструкция модели
type SystemInstructionPayload struct {
	SystemInstruction string `json:"system_instruction"`
}

// MessageResponse простой ответ с сообщением
type MessageResponse struct {
	Message string `json:"message"`
}

// ReportDefinitionResponse определение отчета с текущей версией шаблона
type ReportDefinitionResponse struct {
	*definitions.Report
	LatestVersion *database.TemplateVersion `json:"latest_version,omitempty"`
}

// DiscoverResponse результат поиска плейсхолдеров
type DiscoverResponse struct {
	ReportName      string              `json:"report_name"`
	TemplateVersion int                 `json:"template_version"`
	TemplateFound   bool                `json:"template_found"`
	ErrorMessage    string              `json:"error_message,omitempty"`
	Placeholders    []placeholder.Token `json:"placeholders"`
	// Текущие сохраненные решения для предзаполнения формы
	CurrentMappings []placeholder.Decision `json:"current_mappings"`
}

// FinalizeTemplateRequest решения оператора по плейсхолдерам
type FinalizeTemplateRequest struct {
	Mappings []placeholder.Decision `json:"mappings"`
	Note     string                 `json:"note,omitempty"`
}

// RefineTemplateRequest инструкция доработки шаблона моделью
type RefineTemplateRequest struct {
	Instruction string `json:"instruction"`
	Note        string `json:"note,omitempty"`
}

// EditTemplateRequest прямое редактирование HTML шаблона
type EditTemplateRequest struct {
	HTML string `json:"html"`
	Note string `json:"note,omitempty"`
}

// RevertRequest запрос на откат к версии
type RevertRequest struct {
	TargetVersion int    `json:"target_version"`
	Note          string `json:"note,omitempty"`
}

// VersionResponse результат операции, создавшей версию шаблона
type VersionResponse struct {
	Message string                    `json:"message"`
	Version *database.TemplateVersion `json:"version"`
}

// VersionHTMLResponse содержимое версии шаблона
type VersionHTMLResponse struct {
	Version *database.TemplateVersion `json:"version"`
	HTML    string                    `json:"html"`
}

// ExecuteReportRequest запрос выполнения отчета
type ExecuteReportRequest struct {
	ReportDefinitionName string `json:"report_definition_name"`
	FilterCriteriaJSON   string `json:"filter_criteria_json"`
}

// ExecuteReportResponse путь к сгенерированному отчету
type ExecuteReportResponse struct {
	ReportURLPath string         `json:"report_url_path"`
	ReportID      string         `json:"report_id"`
	RowCounts     map[string]int `json:"row_counts"`
}
