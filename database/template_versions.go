package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Источники версий шаблона
const (
	SourceGenerate = "generate"
	SourceFinalize = "finalize"
	SourceRefine   = "refine"
	SourceEdit     = "edit"
	SourceRevert   = "revert"
)

// TemplateVersion запись истории версий шаблона
type TemplateVersion struct {
	ID           int       `json:"id"`
	ReportName   string    `json:"report_name"`
	Version      int       `json:"version"`
	Source       string    `json:"source"`
	TemplatePath string    `json:"template_path"`
	RevertedFrom *int      `json:"reverted_from,omitempty"`
	MappingsJSON string    `json:"mappings_json,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const templateVersionColumns = `
	id, report_name, version, source, template_path, reverted_from, mappings_json, note, created_at
`

// AddTemplateVersion добавляет версию N+1 и обновляет latest_template_version в одной транзакции
func (db *DB) AddTemplateVersion(reportName, source, templatePath string, revertedFrom *int, mappingsJSON, note string) (*TemplateVersion, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var latest int
	err = tx.QueryRow(`SELECT latest_template_version FROM report_definitions WHERE report_name = ?`, reportName).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report definition %q: %w", reportName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest template version: %w", err)
	}

	next := latest + 1
	reverted := sql.NullInt64{}
	if revertedFrom != nil {
		reverted = sql.NullInt64{Int64: int64(*revertedFrom), Valid: true}
	}
	mappings := sql.NullString{String: mappingsJSON, Valid: mappingsJSON != ""}

	result, err := tx.Exec(`
		INSERT INTO template_versions (report_name, version, source, template_path, reverted_from, mappings_json, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, reportName, next, source, templatePath, reverted, mappings, note)
	if err != nil {
		return nil, fmt.Errorf("failed to insert template version: %w", err)
	}

	// Последние решения по плейсхолдерам сохраняются вместе с версией
	updateSQL := `UPDATE report_definitions SET latest_template_version = ?, updated_at = CURRENT_TIMESTAMP WHERE report_name = ?`
	args := []interface{}{next, reportName}
	if mappingsJSON != "" {
		updateSQL = `UPDATE report_definitions SET latest_template_version = ?, placeholder_mappings_json = ?, updated_at = CURRENT_TIMESTAMP WHERE report_name = ?`
		args = []interface{}{next, mappingsJSON, reportName}
	}
	if _, err := tx.Exec(updateSQL, args...); err != nil {
		return nil, fmt.Errorf("failed to update latest template version: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get template version ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &TemplateVersion{
		ID:           int(id),
		ReportName:   reportName,
		Version:      next,
		Source:       source,
		TemplatePath: templatePath,
		RevertedFrom: revertedFrom,
		MappingsJSON: mappingsJSON,
		Note:         note,
		CreatedAt:    time.Now(),
	}, nil
}

// ListTemplateVersions возвращает историю версий, новые первыми
func (db *DB) ListTemplateVersions(reportName string) ([]*TemplateVersion, error) {
	rows, err := db.conn.Query(`SELECT `+templateVersionColumns+`
		FROM template_versions WHERE report_name = ? ORDER BY version DESC`, reportName)
	if err != nil {
		return nil, fmt.Errorf("failed to list template versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*TemplateVersion, 0)
	for rows.Next() {
		version, err := scanTemplateVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template version: %w", err)
		}
		versions = append(versions, version)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate template versions: %w", err)
	}

	return versions, nil
}

// GetTemplateVersion получает конкретную версию шаблона
func (db *DB) GetTemplateVersion(reportName string, version int) (*TemplateVersion, error) {
	row := db.conn.QueryRow(`SELECT `+templateVersionColumns+`
		FROM template_versions WHERE report_name = ? AND version = ?`, reportName, version)

	v, err := scanTemplateVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template version %d of %q: %w", version, reportName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template version: %w", err)
	}
	return v, nil
}

// GetLatestTemplateVersion получает последнюю версию шаблона
func (db *DB) GetLatestTemplateVersion(reportName string) (*TemplateVersion, error) {
	row := db.conn.QueryRow(`SELECT `+templateVersionColumns+`
		FROM template_versions WHERE report_name = ? ORDER BY version DESC LIMIT 1`, reportName)

	v, err := scanTemplateVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no template versions for %q: %w", reportName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest template version: %w", err)
	}
	return v, nil
}

func scanTemplateVersion(row rowScanner) (*TemplateVersion, error) {
	v := &TemplateVersion{}
	var reverted sql.NullInt64
	var mappings sql.NullString

	err := row.Scan(
		&v.ID,
		&v.ReportName,
		&v.Version,
		&v.Source,
		&v.TemplatePath,
		&reverted,
		&mappings,
		&v.Note,
		&v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reverted.Valid {
		from := int(reverted.Int64)
		v.RevertedFrom = &from
	}
	v.MappingsJSON = mappings.String

	return v, nil
}
