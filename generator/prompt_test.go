package generator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"reportserver/placeholder"
	"reportserver/report"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", "<html></html>", "<html></html>"},
		{"html fence", "```html\n<html></html>\n```", "<html></html>"},
		{"bare fence", "```\n<p>x</p>\n```\n", "<p>x</p>"},
		{"no closing fence", "```html\n<p>x</p>", "<p>x</p>"},
		{"crlf", "```html\r\n<p>x</p>\r\n```", "<p>x</p>"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	no := false
	in := PromptInput{
		Prompt:     "Monthly sales by region",
		HeaderText: "ACME Corp",
		DataTables: []report.DataTable{{
			TablePlaceholderName: "sales",
			Schema: []placeholder.FieldDescriptor{
				{Name: "region", Type: "STRING"},
				{Name: "amount", Type: "NUMERIC"},
			},
			FieldDisplayConfigs: []report.FieldDisplayConfig{
				{FieldName: "region", GroupSummaryAction: report.GroupSubtotalOnly, IncludeAtTop: true},
				{FieldName: "amount", NumberFormat: "USD", NumericAggregation: report.AggSum, IncludeInBody: &no, IncludeInHeader: true},
			},
			CalculationRows: []report.CalculationRow{{
				RowLabel:              "Total",
				ValuesPlaceholderName: "TOTAL_VALUES",
				CalculatedValues:      []report.CalculatedValue{{TargetFieldName: "amount", CalculationType: "sum"}},
			}},
		}},
		LookConfigs:   []placeholder.LookConfig{{LookID: "42", PlaceholderName: "trend"}},
		FilterConfigs: []placeholder.FilterConfig{{FilterKey: "region_eq", Label: "Region"}},
	}

	prompt := BuildPrompt(in)

	assert.True(t, strings.HasPrefix(prompt, "Monthly sales by region"))
	assert.Contains(t, prompt, "Report header text: ACME Corp")
	assert.Contains(t, prompt, "Schema: `region` (Type: STRING), `amount` (Type: NUMERIC)")
	assert.Contains(t, prompt, "Table rows placeholder: {{TABLE_ROWS_sales}}")
	assert.Contains(t, prompt, "- `region` (Group Summary: SUBTOTAL_ONLY) (Repeat: REPEAT)")
	assert.Contains(t, prompt, "-> Use placeholder: {{TOP_region}}")
	assert.Contains(t, prompt, "- `amount` (Styling: format: USD) (Numeric Agg: SUM) -> Use placeholder: {{HEADER_amount}}")
	assert.Contains(t, prompt, `Label "Total", Placeholder `+"`{{TOTAL_VALUES}}`"+` for: SUM of 'amount'.`)
	assert.Contains(t, prompt, `<img src="{{LOOK_IMAGE_trend}}">`)
	assert.Contains(t, prompt, "- Region: show the applied value with {{FILTER_VALUE_region_eq}}")
	assert.True(t, strings.HasSuffix(prompt, "end with `</html>`."))

	// amount не выводится в теле таблицы
	bodyStart := strings.Index(prompt, "Body Fields:")
	bodyEnd := strings.Index(prompt, "Top Fields:")
	assert.NotContains(t, prompt[bodyStart:bodyEnd], "`amount`")
}

func TestBuildPrompt_OptimizedPromptWins(t *testing.T) {
	prompt := BuildPrompt(PromptInput{Prompt: "raw", OptimizedPrompt: "optimized", DataTables: []report.DataTable{{TablePlaceholderName: "t"}}})
	assert.True(t, strings.HasPrefix(prompt, "optimized"))
	assert.Contains(t, prompt, "Schema: Not determined.")
}
