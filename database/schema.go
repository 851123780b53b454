package database

import (
	"database/sql"
	"fmt"
)

// InitSchema создает таблицы определений отчетов и истории версий шаблонов
func InitSchema(db *sql.DB) error {
	// Таблица определений отчетов
	definitionsTable := `
		CREATE TABLE IF NOT EXISTS report_definitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			report_name TEXT UNIQUE NOT NULL,
			prompt TEXT NOT NULL DEFAULT '',
			optimized_prompt TEXT NOT NULL DEFAULT '',
			screenshot_url TEXT NOT NULL DEFAULT '',
			header_text TEXT NOT NULL DEFAULT '',
			footer_text TEXT NOT NULL DEFAULT '',
			data_tables_json TEXT NOT NULL DEFAULT '[]',
			look_configs_json TEXT NOT NULL DEFAULT '[]',
			filter_configs_json TEXT NOT NULL DEFAULT '[]',
			user_attribute_mappings_json TEXT NOT NULL DEFAULT '{}',
			placeholder_mappings_json TEXT NOT NULL DEFAULT '[]',
			latest_template_version INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	// Таблица версий шаблонов (только добавление)
	versionsTable := `
		CREATE TABLE IF NOT EXISTS template_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			report_name TEXT NOT NULL,
			version INTEGER NOT NULL,
			source TEXT NOT NULL,
			template_path TEXT NOT NULL,
			reverted_from INTEGER,
			mappings_json TEXT,
			note TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(report_name, version),
			FOREIGN KEY(report_name) REFERENCES report_definitions(report_name)
		)
	`

	tables := []string{
		definitionsTable,
		versionsTable,
	}

	for _, tableSQL := range tables {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create report table: %w", err)
		}
	}

	// Создаем индексы
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_template_versions_report ON template_versions(report_name)`,
		`CREATE INDEX IF NOT EXISTS idx_template_versions_source ON template_versions(source)`,
		`CREATE INDEX IF NOT EXISTS idx_report_definitions_updated ON report_definitions(updated_at)`,
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create report index: %w", err)
		}
	}

	return nil
}
