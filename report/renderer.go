package report

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reportserver/placeholder"
)

// Служебные плейсхолдеры шаблона
const (
	LegacyTableRowsKey = "TABLE_ROWS_HTML_PLACEHOLDER"
	ReportTitleKey     = "REPORT_TITLE_PLACEHOLDER"
	CurrentDateKey     = "CURRENT_DATE_PLACEHOLDER"
)

// DataSource выполняет параметризованные запросы таблиц данных
type DataSource interface {
	Query(ctx context.Context, sql string, params []Param) (*QueryResult, error)
}

// RenderInput входные данные рендеринга
type RenderInput struct {
	Definition Definition
	HTML       string
	Criteria   Criteria
}

// RenderedReport результат рендеринга
type RenderedReport struct {
	HTML      string         `json:"html"`
	RowCounts map[string]int `json:"row_counts"`
}

// Renderer подставляет данные в финальный шаблон
type Renderer struct {
	source      DataSource
	looks       LookResolver
	concurrency int
	now         func() time.Time
}

// NewRenderer создает рендерер; looks может быть nil
func NewRenderer(source DataSource, looks LookResolver, concurrency int) *Renderer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Renderer{
		source:      source,
		looks:       looks,
		concurrency: concurrency,
		now:         time.Now,
	}
}

type tableData struct {
	table   DataTable
	filters *FilterSet
	result  *QueryResult
}

// Render загружает данные всех таблиц параллельно и выполняет финальную подстановку
func (r *Renderer) Render(ctx context.Context, in RenderInput) (*RenderedReport, error) {
	def := in.Definition
	data := make([]*tableData, len(def.DataTables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, table := range def.DataTables {
		filters := CompileFilters(def, in.Criteria, table)
		data[i] = &tableData{table: table, filters: filters}

		g.Go(func() error {
			layout := newTableLayout(table, nil)
			sql := BuildQuery(table.SQLQuery, filters, layout.groupFields())
			log.Printf("Executing query for table %s of report %s", table.TablePlaceholderName, def.ReportName)

			result, err := r.source.Query(gctx, sql, filters.Params)
			if err != nil {
				return fmt.Errorf("failed to query table %s: %w", table.TablePlaceholderName, err)
			}
			data[i].result = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lookURLs, err := r.resolveLooks(ctx, def, in.Criteria)
	if err != nil {
		return nil, err
	}

	sub := &substitution{
		def:       def,
		criteria:  in.Criteria,
		data:      data,
		lookURLs:  lookURLs,
		fallbacks: placeholder.Fallbacks(def.PlaceholderMappings),
		calcRows:  make(map[string]string),
		now:       r.now(),
	}
	for _, td := range data {
		for _, calc := range td.table.CalculationRows {
			if calc.ValuesPlaceholderName != "" {
				sub.calcRows[calc.ValuesPlaceholderName] = BuildCalculationCells(td.table, calc, td.result)
			}
		}
	}

	report := &RenderedReport{
		HTML:      placeholder.ReplaceTokens(in.HTML, sub.replace),
		RowCounts: make(map[string]int, len(data)),
	}
	for _, td := range data {
		if td.result != nil {
			report.RowCounts[td.table.TablePlaceholderName] = len(td.result.Rows)
		}
	}
	return report, nil
}

func (r *Renderer) resolveLooks(ctx context.Context, def Definition, criteria Criteria) (map[string]string, error) {
	urls := make(map[string]string, len(def.LookConfigs))
	for _, look := range def.LookConfigs {
		if override, ok := criteria.LookImageURLs[look.PlaceholderName]; ok {
			urls[look.PlaceholderName] = override
			continue
		}
		if r.looks == nil {
			continue
		}
		u, err := r.looks.ImageURL(ctx, look, lookFilters(def, criteria, look))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve look %s: %w", look.LookID, err)
		}
		urls[look.PlaceholderName] = u
	}
	return urls, nil
}

// substitution состояние финальной подстановки
type substitution struct {
	def       Definition
	criteria  Criteria
	data      []*tableData
	lookURLs  map[string]string
	fallbacks map[string]string
	calcRows  map[string]string
	now       time.Time
}

func (s *substitution) replace(tag, key string) string {
	switch {
	case strings.HasPrefix(key, placeholder.TableRowsPrefix):
		if td := s.tableFor(key); td != nil {
			return BuildTableRows(td.table, td.result)
		}
		log.Printf("No data table for %s in report %s", tag, s.def.ReportName)
		return tag
	case strings.HasPrefix(key, placeholder.TopPrefix):
		field := strings.TrimPrefix(key, placeholder.TopPrefix)
		return html.EscapeString(s.scalar(placeholder.TopTag(field), field))
	case strings.HasPrefix(key, placeholder.HeaderPrefix):
		field := strings.TrimPrefix(key, placeholder.HeaderPrefix)
		return html.EscapeString(s.scalar(placeholder.HeaderTag(field), field))
	case strings.HasPrefix(key, placeholder.LookImagePrefix):
		return html.EscapeString(s.lookURLs[strings.TrimPrefix(key, placeholder.LookImagePrefix)])
	case strings.HasPrefix(key, placeholder.FilterValuePrefix):
		return html.EscapeString(string(s.criteria.FilterValues[strings.TrimPrefix(key, placeholder.FilterValuePrefix)]))
	case key == ReportTitleKey:
		return html.EscapeString(ReportTitle(s.def.ReportName))
	case key == CurrentDateKey:
		return s.now.Format("2006-01-02")
	}
	if cells, ok := s.calcRows[key]; ok {
		return cells
	}
	return tag
}

// tableFor находит таблицу по имени; устаревший общий плейсхолдер берет первую таблицу
func (s *substitution) tableFor(key string) *tableData {
	name := strings.TrimPrefix(key, placeholder.TableRowsPrefix)
	for _, td := range s.data {
		if td.table.TablePlaceholderName == name {
			return td
		}
	}
	if key == LegacyTableRowsKey && len(s.data) > 0 {
		return s.data[0]
	}
	return nil
}

// scalar значение TOP/HEADER поля: фильтр, первая строка первой таблицы с полем, fallback
func (s *substitution) scalar(canonical, field string) string {
	for _, td := range s.data {
		if v, ok := td.filters.Applied[field]; ok && v != "" {
			return v
		}
	}

	for _, td := range s.data {
		if td.result == nil || len(td.result.Rows) == 0 {
			continue
		}
		first := td.result.Rows[0]
		raw, present := first[field]
		if !td.table.HasField(field) && !present {
			continue
		}
		cfg := td.table.FieldConfig(field)
		if v := FormatValue(raw, cfg.NumberFormat, td.table.FieldType(field)); v != "" {
			return v
		}
		break
	}

	return s.fallbacks[canonical]
}

// ReportTitle заголовок отчета: "Report: " и имя в Title Case без подчеркиваний
func ReportTitle(name string) string {
	return "Report: " + cases.Title(language.Und).String(strings.ReplaceAll(name, "_", " "))
}
