package report

import (
	"fmt"
	"html"
	"strings"
)

// NoDataMessage текст строки при пустом результате
const NoDataMessage = "No data found for the selected criteria."

// QueryResult результат запроса таблицы данных
type QueryResult struct {
	Columns []string
	Rows    []Row
}

// tableLayout колонки тела таблицы и их настройки
type tableLayout struct {
	table   DataTable
	fields  []string
	configs map[string]FieldDisplayConfig
	types   map[string]string
}

func newTableLayout(table DataTable, result *QueryResult) tableLayout {
	layout := tableLayout{
		table:   table,
		configs: make(map[string]FieldDisplayConfig),
		types:   make(map[string]string),
	}

	names := make([]string, 0, len(table.Schema))
	for _, f := range table.Schema {
		names = append(names, f.Name)
		layout.types[f.Name] = strings.ToUpper(f.Type)
	}
	if len(names) == 0 && result != nil {
		names = result.Columns
	}

	for _, name := range names {
		cfg := table.FieldConfig(name)
		layout.configs[name] = cfg
		if cfg.InBody() {
			layout.fields = append(layout.fields, name)
		}
	}
	if len(layout.fields) == 0 && result != nil {
		layout.fields = result.Columns
	}
	return layout
}

func (l tableLayout) config(name string) FieldDisplayConfig {
	if cfg, ok := l.configs[name]; ok {
		return cfg
	}
	return FieldDisplayConfig{FieldName: name}
}

// groupFields поля, по смене значения которых выводятся промежуточные итоги
func (l tableLayout) groupFields() []string {
	var fields []string
	for _, f := range l.table.Schema {
		switch strings.ToUpper(l.config(f.Name).GroupSummaryAction) {
		case GroupSubtotalOnly, GroupSubtotalAndGrandTotal:
			fields = append(fields, f.Name)
		}
	}
	return fields
}

func (l tableLayout) needsGrandTotal() bool {
	for _, cfg := range l.configs {
		switch strings.ToUpper(cfg.GroupSummaryAction) {
		case GroupGrandTotalOnly, GroupSubtotalAndGrandTotal:
			return true
		}
	}
	return false
}

func (l tableLayout) alignment(name, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg := l.config(name); cfg.Alignment != "" {
		return cfg.Alignment
	}
	if IsNumericType(l.types[name]) {
		return "right"
	}
	return ""
}

func cell(value, align string) string {
	if align == "" {
		return "<td>" + value + "</td>"
	}
	return fmt.Sprintf("<td style=\"text-align: %s;\">%s</td>", html.EscapeString(align), value)
}

// BuildTableRows разворачивает строки результата в HTML с промежуточными и общими итогами
func BuildTableRows(table DataTable, result *QueryResult) string {
	layout := newTableLayout(table, result)
	var rows []Row
	if result != nil {
		rows = result.Rows
	}

	if len(rows) == 0 {
		colspan := len(layout.fields)
		if colspan == 0 {
			colspan = 1
		}
		return fmt.Sprintf("<tr><td colspan='%d'>%s</td></tr>", colspan, NoDataMessage)
	}

	groups := layout.groupFields()
	var b strings.Builder

	// начало текущей группы для каждого уровня
	starts := make([]int, len(groups))
	for i, row := range rows {
		if i > 0 {
			if level := changedLevel(groups, rows[i-1], row); level >= 0 {
				for g := len(groups) - 1; g >= level; g-- {
					b.WriteString(layout.summaryRow("subtotal-row", "Subtotal for "+stringify(rows[i-1][groups[g]])+":", rows[starts[g]:i]))
					starts[g] = i
				}
			}
		}
		b.WriteString(layout.dataRow(row, groups, i == 0 || changedLevel(groups, rows[i-1], row) >= 0))
	}
	for g := len(groups) - 1; g >= 0; g-- {
		b.WriteString(layout.summaryRow("subtotal-row", "Subtotal for "+stringify(rows[len(rows)-1][groups[g]])+":", rows[starts[g]:]))
	}

	if layout.needsGrandTotal() {
		b.WriteString(layout.summaryRow("grand-total-row", "Grand Total:", rows))
	}

	return b.String()
}

// changedLevel индекс первого группирующего поля, значение которого сменилось, или -1
func changedLevel(groups []string, prev, cur Row) int {
	for i, field := range groups {
		if stringify(prev[field]) != stringify(cur[field]) {
			return i
		}
	}
	return -1
}

func (l tableLayout) dataRow(row Row, groups []string, groupStart bool) string {
	var b strings.Builder
	b.WriteString("<tr>")
	for _, name := range l.fields {
		cfg := l.config(name)
		value := html.EscapeString(FormatValue(row[name], cfg.NumberFormat, l.types[name]))
		if !groupStart && !cfg.Repeat() && containsString(groups, name) {
			value = ""
		}
		b.WriteString(cell(value, l.alignment(name, "")))
	}
	b.WriteString("</tr>\n")
	return b.String()
}

// summaryRow строка итога: метка в первой неагрегируемой ячейке, агрегаты в числовых
func (l tableLayout) summaryRow(class, label string, rows []Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<tr class='%s'>", class)

	labelPlaced := false
	for _, name := range l.fields {
		cfg := l.config(name)
		if cfg.NumericAggregation != "" && IsNumericType(l.types[name]) {
			total := Aggregate(columnValues(rows, name), cfg.NumericAggregation)
			format, fieldType := cfg.NumberFormat, l.types[name]
			if isCountAggregation(cfg.NumericAggregation) {
				format, fieldType = FormatInteger, "INTEGER"
			}
			b.WriteString(cell(html.EscapeString(FormatValue(total, format, fieldType)), l.alignment(name, "")))
			continue
		}
		if !labelPlaced {
			b.WriteString(cell("<strong>"+html.EscapeString(label)+"</strong>", ""))
			labelPlaced = true
			continue
		}
		b.WriteString("<td></td>")
	}
	b.WriteString("</tr>\n")
	return b.String()
}

// BuildCalculationCells ячейки пользовательской строки расчета по всем строкам таблицы
func BuildCalculationCells(table DataTable, calc CalculationRow, result *QueryResult) string {
	layout := newTableLayout(table, result)
	var rows []Row
	if result != nil {
		rows = result.Rows
	}

	var b strings.Builder
	for _, cv := range calc.CalculatedValues {
		total := Aggregate(columnValues(rows, cv.TargetFieldName), cv.CalculationType)
		format, fieldType := cv.NumberFormat, layout.types[cv.TargetFieldName]
		if isCountAggregation(cv.CalculationType) {
			fieldType = "INTEGER"
			if format == "" {
				format = FormatInteger
			}
		} else if fieldType == "" {
			fieldType = "NUMERIC"
		}
		align := cv.Alignment
		if align == "" {
			align = "right"
		}
		b.WriteString(cell(html.EscapeString(FormatValue(total, format, fieldType)), align))
	}
	return b.String()
}

func columnValues(rows []Row, name string) []interface{} {
	values := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		values = append(values, row[name])
	}
	return values
}

func isCountAggregation(agg string) bool {
	agg = strings.ToUpper(agg)
	return agg == AggCount || agg == AggCountDistinct
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
