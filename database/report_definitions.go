package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReportDefinition строка report_definitions; конфигурации хранятся как JSON
type ReportDefinition struct {
	ID                         int       `json:"id"`
	ReportName                 string    `json:"report_name"`
	Prompt                     string    `json:"prompt"`
	OptimizedPrompt            string    `json:"optimized_prompt,omitempty"`
	ScreenshotURL              string    `json:"screenshot_url"`
	HeaderText                 string    `json:"header_text,omitempty"`
	FooterText                 string    `json:"footer_text,omitempty"`
	DataTablesJSON             string    `json:"data_tables_json"`
	LookConfigsJSON            string    `json:"look_configs_json"`
	FilterConfigsJSON          string    `json:"filter_configs_json"`
	UserAttributeMappingsJSON  string    `json:"user_attribute_mappings_json"`
	PlaceholderMappingsJSON    string    `json:"placeholder_mappings_json"`
	LatestTemplateVersion      int       `json:"latest_template_version"`
	CreatedAt                  time.Time `json:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

const reportDefinitionColumns = `
	id, report_name, prompt, optimized_prompt, screenshot_url, header_text, footer_text,
	data_tables_json, look_configs_json, filter_configs_json, user_attribute_mappings_json,
	placeholder_mappings_json, latest_template_version, created_at, updated_at
`

// CreateReportDefinition создает определение отчета без версий шаблона
func (db *DB) CreateReportDefinition(def *ReportDefinition) error {
	query := `
		INSERT INTO report_definitions
		(report_name, prompt, optimized_prompt, screenshot_url, header_text, footer_text,
		 data_tables_json, look_configs_json, filter_configs_json, user_attribute_mappings_json,
		 placeholder_mappings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.conn.Exec(query,
		def.ReportName,
		def.Prompt,
		def.OptimizedPrompt,
		def.ScreenshotURL,
		def.HeaderText,
		def.FooterText,
		orDefault(def.DataTablesJSON, "[]"),
		orDefault(def.LookConfigsJSON, "[]"),
		orDefault(def.FilterConfigsJSON, "[]"),
		orDefault(def.UserAttributeMappingsJSON, "{}"),
		orDefault(def.PlaceholderMappingsJSON, "[]"),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrReportExists, def.ReportName)
		}
		return fmt.Errorf("failed to create report definition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get report definition ID: %w", err)
	}
	def.ID = int(id)

	return nil
}

// GetReportDefinition получает определение отчета по имени
func (db *DB) GetReportDefinition(reportName string) (*ReportDefinition, error) {
	query := `SELECT ` + reportDefinitionColumns + ` FROM report_definitions WHERE report_name = ?`

	def, err := scanReportDefinition(db.conn.QueryRow(query, reportName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report definition %q: %w", reportName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report definition: %w", err)
	}

	return def, nil
}

// ListReportDefinitions возвращает все определения отчетов по имени
func (db *DB) ListReportDefinitions() ([]*ReportDefinition, error) {
	query := `SELECT ` + reportDefinitionColumns + ` FROM report_definitions ORDER BY report_name ASC`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list report definitions: %w", err)
	}
	defer rows.Close()

	definitions := make([]*ReportDefinition, 0)
	for rows.Next() {
		def, err := scanReportDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report definition: %w", err)
		}
		definitions = append(definitions, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report definitions: %w", err)
	}

	return definitions, nil
}

// UpdateReportConfig обновляет конфигурацию отчета. Имя отчета не меняется.
func (db *DB) UpdateReportConfig(def *ReportDefinition) error {
	query := `
		UPDATE report_definitions
		SET prompt = ?, optimized_prompt = ?, screenshot_url = ?, header_text = ?, footer_text = ?,
		    data_tables_json = ?, look_configs_json = ?, filter_configs_json = ?,
		    user_attribute_mappings_json = ?, updated_at = CURRENT_TIMESTAMP
		WHERE report_name = ?
	`
	result, err := db.conn.Exec(query,
		def.Prompt,
		def.OptimizedPrompt,
		def.ScreenshotURL,
		def.HeaderText,
		def.FooterText,
		orDefault(def.DataTablesJSON, "[]"),
		orDefault(def.LookConfigsJSON, "[]"),
		orDefault(def.FilterConfigsJSON, "[]"),
		orDefault(def.UserAttributeMappingsJSON, "{}"),
		def.ReportName,
	)
	if err != nil {
		return fmt.Errorf("failed to update report definition: %w", err)
	}

	return requireAffected(result, def.ReportName)
}

// UpdatePlaceholderMappings сохраняет последние решения по плейсхолдерам
func (db *DB) UpdatePlaceholderMappings(reportName, mappingsJSON string) error {
	result, err := db.conn.Exec(`
		UPDATE report_definitions
		SET placeholder_mappings_json = ?, updated_at = CURRENT_TIMESTAMP
		WHERE report_name = ?
	`, orDefault(mappingsJSON, "[]"), reportName)
	if err != nil {
		return fmt.Errorf("failed to update placeholder mappings: %w", err)
	}

	return requireAffected(result, reportName)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReportDefinition(row rowScanner) (*ReportDefinition, error) {
	def := &ReportDefinition{}
	err := row.Scan(
		&def.ID,
		&def.ReportName,
		&def.Prompt,
		&def.OptimizedPrompt,
		&def.ScreenshotURL,
		&def.HeaderText,
		&def.FooterText,
		&def.DataTablesJSON,
		&def.LookConfigsJSON,
		&def.FilterConfigsJSON,
		&def.UserAttributeMappingsJSON,
		&def.PlaceholderMappingsJSON,
		&def.LatestTemplateVersion,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return def, nil
}

func requireAffected(result sql.Result, reportName string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("report definition %q: %w", reportName, ErrNotFound)
	}
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
