// Package definitions хранит определения отчетов и историю версий их шаблонов
package definitions

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"reportserver/database"
	"reportserver/placeholder"
	"reportserver/report"
)

// DefaultTableName имя таблицы для определений с одним sql_query
const DefaultTableName = "main"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ReportConfig редактируемая конфигурация отчета
type ReportConfig struct {
	ReportName            string                     `json:"report_name"`
	Prompt                string                     `json:"prompt"`
	OptimizedPrompt       string                     `json:"optimized_prompt,omitempty"`
	ImageURL              string                     `json:"image_url"`
	HeaderText            string                     `json:"header_text,omitempty"`
	FooterText            string                     `json:"footer_text,omitempty"`
	DataTables            []report.DataTable         `json:"data_tables"`
	LookConfigs           []placeholder.LookConfig   `json:"look_configs,omitempty"`
	FilterConfigs         []placeholder.FilterConfig `json:"filter_configs,omitempty"`
	UserAttributeMappings map[string]string          `json:"user_attribute_mappings,omitempty"`

	// Поля определения с одной таблицей
	SQLQuery            string                      `json:"sql_query,omitempty"`
	FieldDisplayConfigs []report.FieldDisplayConfig `json:"field_display_configs,omitempty"`
	CalculationRows     []report.CalculationRow     `json:"calculation_row_configs,omitempty"`
}

// Normalize переносит sql_query и его настройки в data_tables
func (c *ReportConfig) Normalize() {
	c.ReportName = strings.TrimSpace(c.ReportName)
	if len(c.DataTables) == 0 && strings.TrimSpace(c.SQLQuery) != "" {
		c.DataTables = []report.DataTable{{
			TablePlaceholderName: DefaultTableName,
			SQLQuery:             c.SQLQuery,
			FieldDisplayConfigs:  c.FieldDisplayConfigs,
			CalculationRows:      c.CalculationRows,
		}}
	}
	c.SQLQuery = ""
	c.FieldDisplayConfigs = nil
	c.CalculationRows = nil
	if c.UserAttributeMappings == nil {
		c.UserAttributeMappings = map[string]string{}
	}
}

// Validate проверяет обязательные поля конфигурации
func (c *ReportConfig) Validate() error {
	if c.ReportName == "" {
		return fmt.Errorf("report_name is required")
	}
	if len(c.DataTables) == 0 {
		return fmt.Errorf("at least one data table is required")
	}

	seen := make(map[string]bool)
	for i, table := range c.DataTables {
		if !tableNamePattern.MatchString(table.TablePlaceholderName) {
			return fmt.Errorf("data_tables[%d]: invalid table_placeholder_name %q", i, table.TablePlaceholderName)
		}
		if seen[table.TablePlaceholderName] {
			return fmt.Errorf("data_tables[%d]: duplicate table_placeholder_name %q", i, table.TablePlaceholderName)
		}
		seen[table.TablePlaceholderName] = true
		if strings.TrimSpace(table.SQLQuery) == "" {
			return fmt.Errorf("data_tables[%d]: sql_query is required", i)
		}
		for _, calc := range table.CalculationRows {
			if calc.ValuesPlaceholderName == "" {
				return fmt.Errorf("data_tables[%d]: calculation row %q has no values_placeholder_name", i, calc.RowLabel)
			}
			for _, cv := range calc.CalculatedValues {
				if !report.ValidAggregation(cv.CalculationType) {
					return fmt.Errorf("data_tables[%d]: unsupported calculation_type %q", i, cv.CalculationType)
				}
			}
		}
	}

	for _, look := range c.LookConfigs {
		if look.LookID == "" || look.PlaceholderName == "" {
			return fmt.Errorf("look config requires look_id and placeholder_name")
		}
	}
	for _, fc := range c.FilterConfigs {
		if fc.FilterKey == "" {
			return fmt.Errorf("filter config requires filter_key")
		}
	}
	return nil
}

// Report определение отчета с разобранными JSON конфигурациями
type Report struct {
	ReportConfig
	PlaceholderMappings   []placeholder.Decision `json:"placeholder_mappings"`
	LatestTemplateVersion int                    `json:"latest_template_version"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// Definition данные для рендерера
func (r *Report) Definition() report.Definition {
	return report.Definition{
		ReportName:            r.ReportName,
		DataTables:            r.DataTables,
		LookConfigs:           r.LookConfigs,
		FilterConfigs:         r.FilterConfigs,
		UserAttributeMappings: r.UserAttributeMappings,
		PlaceholderMappings:   r.PlaceholderMappings,
	}
}

// Schema объединенная схема всех таблиц без повторов имен
func (r *Report) Schema() []placeholder.FieldDescriptor {
	var fields []placeholder.FieldDescriptor
	seen := make(map[string]bool)
	for _, table := range r.DataTables {
		for _, f := range table.Schema {
			if seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			fields = append(fields, f)
		}
	}
	return fields
}

// encode переводит конфигурацию в строку report_definitions
func encode(cfg ReportConfig) (*database.ReportDefinition, error) {
	rec := &database.ReportDefinition{
		ReportName:      cfg.ReportName,
		Prompt:          cfg.Prompt,
		OptimizedPrompt: cfg.OptimizedPrompt,
		ScreenshotURL:   cfg.ImageURL,
		HeaderText:      cfg.HeaderText,
		FooterText:      cfg.FooterText,
	}

	fields := []struct {
		dst   *string
		value interface{}
		name  string
	}{
		{&rec.DataTablesJSON, cfg.DataTables, "data tables"},
		{&rec.LookConfigsJSON, cfg.LookConfigs, "look configs"},
		{&rec.FilterConfigsJSON, cfg.FilterConfigs, "filter configs"},
		{&rec.UserAttributeMappingsJSON, cfg.UserAttributeMappings, "user attribute mappings"},
	}
	for _, f := range fields {
		raw, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", f.name, err)
		}
		if string(raw) != "null" {
			*f.dst = string(raw)
		}
	}
	return rec, nil
}

// decode разбирает JSON колонки строки report_definitions
func decode(rec *database.ReportDefinition) (*Report, error) {
	r := &Report{
		ReportConfig: ReportConfig{
			ReportName:      rec.ReportName,
			Prompt:          rec.Prompt,
			OptimizedPrompt: rec.OptimizedPrompt,
			ImageURL:        rec.ScreenshotURL,
			HeaderText:      rec.HeaderText,
			FooterText:      rec.FooterText,
		},
		LatestTemplateVersion: rec.LatestTemplateVersion,
		CreatedAt:             rec.CreatedAt,
		UpdatedAt:             rec.UpdatedAt,
	}

	fields := []struct {
		raw  string
		dst  interface{}
		name string
	}{
		{rec.DataTablesJSON, &r.DataTables, "data_tables_json"},
		{rec.LookConfigsJSON, &r.LookConfigs, "look_configs_json"},
		{rec.FilterConfigsJSON, &r.FilterConfigs, "filter_configs_json"},
		{rec.UserAttributeMappingsJSON, &r.UserAttributeMappings, "user_attribute_mappings_json"},
		{rec.PlaceholderMappingsJSON, &r.PlaceholderMappings, "placeholder_mappings_json"},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("report %q: invalid %s: %w", rec.ReportName, f.name, err)
		}
	}
	if r.UserAttributeMappings == nil {
		r.UserAttributeMappings = map[string]string{}
	}
	return r, nil
}
