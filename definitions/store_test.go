package definitions

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportserver/blobstore"
	"reportserver/database"
	"reportserver/placeholder"
	"reportserver/report"
)

func newTestStore(t *testing.T) (*Store, *blobstore.MemoryStore) {
	t.Helper()
	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	blobs := blobstore.NewMemoryStore()
	return NewStore(db, blobs, Options{DefaultSystemInstruction: "default instruction"}), blobs
}

func salesConfig() ReportConfig {
	cfg := ReportConfig{
		ReportName: "Sales Report",
		Prompt:     "Monthly sales",
		ImageURL:   "https://example.com/style.png",
		SQLQuery:   "SELECT region, amount FROM sales",
		FieldDisplayConfigs: []report.FieldDisplayConfig{
			{FieldName: "amount", NumberFormat: "USD"},
		},
		LookConfigs:   []placeholder.LookConfig{{LookID: "7", PlaceholderName: "trend"}},
		FilterConfigs: []placeholder.FilterConfig{{FilterKey: "region_eq"}},
	}
	cfg.Normalize()
	return cfg
}

func TestNormalizeAndValidate(t *testing.T) {
	cfg := salesConfig()
	require.Len(t, cfg.DataTables, 1)
	assert.Equal(t, DefaultTableName, cfg.DataTables[0].TablePlaceholderName)
	assert.Equal(t, "USD", cfg.DataTables[0].FieldDisplayConfigs[0].NumberFormat)
	assert.Empty(t, cfg.SQLQuery)
	assert.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*ReportConfig)
	}{
		{"no name", func(c *ReportConfig) { c.ReportName = "" }},
		{"no tables", func(c *ReportConfig) { c.DataTables = nil }},
		{"bad table name", func(c *ReportConfig) { c.DataTables[0].TablePlaceholderName = "a b" }},
		{"duplicate table", func(c *ReportConfig) { c.DataTables = append(c.DataTables, c.DataTables[0]) }},
		{"no sql", func(c *ReportConfig) { c.DataTables[0].SQLQuery = " " }},
		{"bad calculation", func(c *ReportConfig) {
			c.DataTables[0].CalculationRows = []report.CalculationRow{{
				ValuesPlaceholderName: "TOTAL",
				CalculatedValues:      []report.CalculatedValue{{TargetFieldName: "amount", CalculationType: "MEDIAN"}},
			}}
		}},
		{"look without id", func(c *ReportConfig) { c.LookConfigs[0].LookID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := salesConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)

	created, err := store.Create(salesConfig())
	require.NoError(t, err)
	assert.Equal(t, "Sales Report", created.ReportName)
	assert.Equal(t, 0, created.LatestTemplateVersion)
	assert.Equal(t, "https://example.com/style.png", created.ImageURL)
	require.Len(t, created.DataTables, 1)
	assert.Equal(t, "SELECT region, amount FROM sales", created.DataTables[0].SQLQuery)
	assert.Equal(t, "trend", created.LookConfigs[0].PlaceholderName)
	assert.NotNil(t, created.UserAttributeMappings)

	_, err = store.Create(salesConfig())
	assert.True(t, errors.Is(err, database.ErrReportExists))

	_, err = store.Get("missing")
	assert.True(t, errors.Is(err, database.ErrNotFound))

	def := created.Definition()
	assert.Equal(t, "Sales Report", def.ReportName)
	assert.Len(t, def.DataTables, 1)
}

func TestStore_Versions(t *testing.T) {
	store, blobs := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(salesConfig())
	require.NoError(t, err)

	_, _, err = store.GetLatestHTML(ctx, "Sales Report")
	assert.True(t, errors.Is(err, ErrNoTemplate))

	v1, err := store.SaveNewVersion(ctx, "Sales Report", "<html><body>{{A}}</body></html>", database.SourceGenerate, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.True(t, strings.HasPrefix(v1.TemplatePath, "report_templates/Sales_Report/"))
	assert.True(t, strings.HasSuffix(v1.TemplatePath, ".html"))
	assert.Equal(t, "text/html; charset=utf-8", blobs.ContentType(v1.TemplatePath))

	text := "Hello"
	decisions := []placeholder.Decision{{OriginalTag: "{{A}}", MapType: placeholder.MapStaticText, StaticTextValue: &text}}
	v2, err := store.SaveNewVersion(ctx, "Sales Report", "<html><body>Hello</body></html>", database.SourceFinalize, "finalized", decisions)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)
	assert.NotEqual(t, v1.TemplatePath, v2.TemplatePath)

	html, latest, err := store.GetLatestHTML(ctx, "Sales Report")
	require.NoError(t, err)
	assert.Equal(t, "<html><body>Hello</body></html>", html)
	assert.Equal(t, 2, latest.Version)

	r, err := store.Get("Sales Report")
	require.NoError(t, err)
	require.Len(t, r.PlaceholderMappings, 1)
	assert.Equal(t, "{{A}}", r.PlaceholderMappings[0].OriginalTag)

	// Откат копирует содержимое в новую версию
	v3, err := store.Revert(ctx, "Sales Report", 1, "")
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version)
	assert.Equal(t, database.SourceRevert, v3.Source)
	require.NotNil(t, v3.RevertedFrom)
	assert.Equal(t, 1, *v3.RevertedFrom)
	assert.Equal(t, "revert to version 1", v3.Note)
	assert.NotEqual(t, v1.TemplatePath, v3.TemplatePath)

	html, _, err = store.GetLatestHTML(ctx, "Sales Report")
	require.NoError(t, err)
	assert.Equal(t, "<html><body>{{A}}</body></html>", html)

	// Исходные версии не изменились
	html, _, err = store.GetVersionHTML(ctx, "Sales Report", 2)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>Hello</body></html>", html)

	versions, err := store.ListVersions("Sales Report")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].Version)

	_, err = store.Revert(ctx, "Sales Report", 9, "")
	assert.True(t, errors.Is(err, database.ErrNotFound))
}

func TestStore_SaveNewVersionUnknownReport(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.SaveNewVersion(context.Background(), "ghost", "<html></html>", database.SourceEdit, "", nil)
	assert.True(t, errors.Is(err, database.ErrNotFound))

	_, err = store.ListVersions("ghost")
	assert.True(t, errors.Is(err, database.ErrNotFound))
}

func TestStore_SystemInstruction(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	text, err := store.SystemInstruction(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default instruction", text)

	require.NoError(t, store.SaveSystemInstruction(ctx, "custom instruction"))
	text, err = store.SystemInstruction(ctx)
	require.NoError(t, err)
	assert.Equal(t, "custom instruction", text)

	assert.Error(t, store.SaveSystemInstruction(ctx, "  "))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "Sales_Report_2024", SafeName("Sales Report/2024"))
	assert.Equal(t, "a-b_c", SafeName("a-b_c"))
}

func TestStore_RevertResetsMappings(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(salesConfig())
	require.NoError(t, err)

	_, err = store.SaveNewVersion(ctx, "Sales Report", "<html>{{A}}</html>", database.SourceGenerate, "", nil)
	require.NoError(t, err)
	text := "Hello"
	decisions := []placeholder.Decision{{OriginalTag: "{{A}}", MapType: placeholder.MapStaticText, StaticTextValue: &text}}
	_, err = store.SaveNewVersion(ctx, "Sales Report", "<html>Hello</html>", database.SourceFinalize, "", decisions)
	require.NoError(t, err)

	// Откат к версии без решений очищает решения отчета
	v3, err := store.Revert(ctx, "Sales Report", 1, "")
	require.NoError(t, err)
	assert.Equal(t, "[]", v3.MappingsJSON)

	r, err := store.Get("Sales Report")
	require.NoError(t, err)
	assert.Empty(t, r.PlaceholderMappings)

	// Откат к финализированной версии возвращает ее решения
	_, err = store.Revert(ctx, "Sales Report", 2, "")
	require.NoError(t, err)
	r, err = store.Get("Sales Report")
	require.NoError(t, err)
	require.Len(t, r.PlaceholderMappings, 1)
	assert.Equal(t, "{{A}}", r.PlaceholderMappings[0].OriginalTag)
}
