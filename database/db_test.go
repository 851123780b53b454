package database

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNewDB(t *testing.T) {
	db, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create DB: %v", err)
	}
	defer db.Close()

	if db == nil {
		t.Error("NewDB returned nil")
	}
	if db.conn == nil {
		t.Error("Database connection is nil")
	}
}

func TestCreateTables(t *testing.T) {
	db, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create DB: %v", err)
	}
	defer db.Close()

	// Проверяем, что таблицы созданы
	for _, table := range []string{"report_definitions", "template_versions"} {
		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check %s table: %v", table, err)
		}
		if count != 1 {
			t.Errorf("%s table not created", table)
		}
	}
}

func TestInitSchemaIdempotent(t *testing.T) {
	db, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create DB: %v", err)
	}
	defer db.Close()

	if err := InitSchema(db.GetDB()); err != nil {
		t.Errorf("Second InitSchema failed: %v", err)
	}
}

func TestFileDatabasePersistsVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.db")
	config := DBConfig{MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: time.Minute}

	db, err := NewDBWithConfig(path, config)
	if err != nil {
		t.Fatalf("Failed to create DB: %v", err)
	}
	if err := db.CreateReportDefinition(&ReportDefinition{ReportName: "persisted"}); err != nil {
		t.Fatalf("Failed to create report definition: %v", err)
	}
	if _, err := db.AddTemplateVersion("persisted", SourceGenerate, "report_templates/persisted/a.html", nil, "", ""); err != nil {
		t.Fatalf("Failed to add version: %v", err)
	}
	db.Close()

	// Повторное открытие видит сохраненные данные
	db, err = NewDBWithConfig(path, config)
	if err != nil {
		t.Fatalf("Failed to reopen DB: %v", err)
	}
	defer db.Close()

	def, err := db.GetReportDefinition("persisted")
	if err != nil {
		t.Fatalf("Failed to get report definition: %v", err)
	}
	if def.LatestTemplateVersion != 1 {
		t.Errorf("Expected latest version 1, got %d", def.LatestTemplateVersion)
	}
}
