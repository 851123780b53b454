package definitions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"reportserver/blobstore"
	"reportserver/database"
	"reportserver/placeholder"
)

// ErrNoTemplate у отчета еще нет ни одной версии шаблона
var ErrNoTemplate = errors.New("report has no template versions")

// TemplatePrefix корень путей шаблонов в хранилище
const TemplatePrefix = "report_templates"

const htmlContentType = "text/html; charset=utf-8"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Options параметры хранилища определений
type Options struct {
	// SystemInstructionPath путь системной инструкции в хранилище
	SystemInstructionPath string
	// DefaultSystemInstruction возвращается, если объект инструкции отсутствует
	DefaultSystemInstruction string
}

// Store определения в sqlite, HTML версий в хранилище объектов
type Store struct {
	db    *database.DB
	blobs blobstore.Store
	opts  Options
}

// NewStore создает хранилище определений
func NewStore(db *database.DB, blobs blobstore.Store, opts Options) *Store {
	if opts.SystemInstructionPath == "" {
		opts.SystemInstructionPath = "system_instructions/default_system_instruction.txt"
	}
	return &Store{db: db, blobs: blobs, opts: opts}
}

// SafeName имя отчета, пригодное для пути объекта
func SafeName(reportName string) string {
	return unsafeNameChars.ReplaceAllString(reportName, "_")
}

// Create сохраняет новое определение без версий шаблона
func (s *Store) Create(cfg ReportConfig) (*Report, error) {
	rec, err := encode(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.db.CreateReportDefinition(rec); err != nil {
		return nil, err
	}
	return s.Get(cfg.ReportName)
}

// Get возвращает определение отчета по имени
func (s *Store) Get(name string) (*Report, error) {
	rec, err := s.db.GetReportDefinition(name)
	if err != nil {
		return nil, err
	}
	return decode(rec)
}

// List возвращает все определения, упорядоченные по имени
func (s *Store) List() ([]*Report, error) {
	recs, err := s.db.ListReportDefinitions()
	if err != nil {
		return nil, err
	}

	reports := make([]*Report, 0, len(recs))
	for _, rec := range recs {
		r, err := decode(rec)
		if err != nil {
			// Поврежденное определение не должно скрывать остальные
			log.Printf("Skipping report definition %q: %v", rec.ReportName, err)
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// UpdateConfig заменяет конфигурацию существующего отчета
func (s *Store) UpdateConfig(cfg ReportConfig) (*Report, error) {
	rec, err := encode(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.db.UpdateReportConfig(rec); err != nil {
		return nil, err
	}
	return s.Get(cfg.ReportName)
}

// SaveMappings сохраняет последние решения по плейсхолдерам без новой версии
func (s *Store) SaveMappings(name string, decisions []placeholder.Decision) error {
	raw, err := encodeMappings(decisions)
	if err != nil {
		return err
	}
	return s.db.UpdatePlaceholderMappings(name, raw)
}

// SaveNewVersion записывает HTML в новый объект и добавляет версию N+1.
// Объект пишется до транзакции, поэтому номер версии выдается только после успешной записи.
func (s *Store) SaveNewVersion(ctx context.Context, name, html, source, note string, mappings []placeholder.Decision) (*database.TemplateVersion, error) {
	return s.addVersion(ctx, name, html, source, note, nil, mappings)
}

func (s *Store) addVersion(ctx context.Context, name, html, source, note string, revertedFrom *int, mappings []placeholder.Decision) (*database.TemplateVersion, error) {
	// Ранняя проверка, чтобы не оставлять объекты для несуществующих отчетов
	if _, err := s.db.GetReportDefinition(name); err != nil {
		return nil, err
	}

	var mappingsJSON string
	if mappings != nil {
		raw, err := encodeMappings(mappings)
		if err != nil {
			return nil, err
		}
		mappingsJSON = raw
	}

	blobPath := path.Join(TemplatePrefix, SafeName(name), uuid.New().String()+".html")
	if err := s.blobs.Write(ctx, blobPath, []byte(html), htmlContentType); err != nil {
		return nil, fmt.Errorf("failed to write template %s: %w", blobPath, err)
	}

	version, err := s.db.AddTemplateVersion(name, source, blobPath, revertedFrom, mappingsJSON, note)
	if err != nil {
		log.Printf("Template blob %s is orphaned: %v", blobPath, err)
		return nil, err
	}

	log.Printf("Saved template version %d of %q (source: %s, path: %s)", version.Version, name, source, blobPath)
	return version, nil
}

// ListVersions история версий, новые первыми
func (s *Store) ListVersions(name string) ([]*database.TemplateVersion, error) {
	if _, err := s.db.GetReportDefinition(name); err != nil {
		return nil, err
	}
	return s.db.ListTemplateVersions(name)
}

// GetLatestHTML HTML последней версии шаблона
func (s *Store) GetLatestHTML(ctx context.Context, name string) (string, *database.TemplateVersion, error) {
	if _, err := s.db.GetReportDefinition(name); err != nil {
		return "", nil, err
	}

	version, err := s.db.GetLatestTemplateVersion(name)
	if errors.Is(err, database.ErrNotFound) {
		return "", nil, fmt.Errorf("%q: %w", name, ErrNoTemplate)
	}
	if err != nil {
		return "", nil, err
	}

	html, err := s.readTemplate(ctx, version)
	if err != nil {
		return "", nil, err
	}
	return html, version, nil
}

// GetVersionHTML HTML конкретной версии шаблона
func (s *Store) GetVersionHTML(ctx context.Context, name string, number int) (string, *database.TemplateVersion, error) {
	version, err := s.db.GetTemplateVersion(name, number)
	if err != nil {
		return "", nil, err
	}

	html, err := s.readTemplate(ctx, version)
	if err != nil {
		return "", nil, err
	}
	return html, version, nil
}

// Revert делает содержимое версии target последней версией N+1. История не удаляется.
func (s *Store) Revert(ctx context.Context, name string, target int, note string) (*database.TemplateVersion, error) {
	html, version, err := s.GetVersionHTML(ctx, name, target)
	if err != nil {
		return nil, err
	}

	// Версия без решений сбрасывает текущие: иначе откат отрисуется с чужими fallback
	mappings := []placeholder.Decision{}
	if version.MappingsJSON != "" {
		if err := json.Unmarshal([]byte(version.MappingsJSON), &mappings); err != nil {
			return nil, fmt.Errorf("invalid mappings of version %d: %w", target, err)
		}
	}
	if note == "" {
		note = fmt.Sprintf("revert to version %d", target)
	}

	from := target
	return s.addVersion(ctx, name, html, database.SourceRevert, note, &from, mappings)
}

// SystemInstruction текущая системная инструкция; при отсутствии объекта используется значение по умолчанию
func (s *Store) SystemInstruction(ctx context.Context) (string, error) {
	data, err := s.blobs.Read(ctx, s.opts.SystemInstructionPath)
	if errors.Is(err, blobstore.ErrNotFound) {
		log.Printf("System instruction not found at %s, using default", s.opts.SystemInstructionPath)
		return s.opts.DefaultSystemInstruction, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read system instruction: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return s.opts.DefaultSystemInstruction, nil
	}
	return string(data), nil
}

// SaveSystemInstruction перезаписывает системную инструкцию
func (s *Store) SaveSystemInstruction(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("system instruction must not be empty")
	}
	if err := s.blobs.Write(ctx, s.opts.SystemInstructionPath, []byte(text), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("failed to write system instruction: %w", err)
	}
	return nil
}

func (s *Store) readTemplate(ctx context.Context, version *database.TemplateVersion) (string, error) {
	data, err := s.blobs.Read(ctx, version.TemplatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read template version %d (%s): %w", version.Version, version.TemplatePath, err)
	}
	return string(data), nil
}

func encodeMappings(decisions []placeholder.Decision) (string, error) {
	if decisions == nil {
		decisions = []placeholder.Decision{}
	}
	raw, err := json.Marshal(decisions)
	if err != nil {
		return "", fmt.Errorf("failed to encode placeholder mappings: %w", err)
	}
	return string(raw), nil
}
