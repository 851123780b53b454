package generator

import (
	"fmt"
	"strings"

	"reportserver/placeholder"
	"reportserver/report"
)

// PromptInput данные определения отчета для построения промпта
type PromptInput struct {
	Prompt          string
	OptimizedPrompt string
	HeaderText      string
	FooterText      string
	DataTables      []report.DataTable
	LookConfigs     []placeholder.LookConfig
	FilterConfigs   []placeholder.FilterConfig
}

// BuildPrompt собирает промпт генерации: запрос пользователя, схемы таблиц,
// инструкции по полям, строки расчетов и финальное напоминание о формате.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	if strings.TrimSpace(in.OptimizedPrompt) != "" {
		b.WriteString(in.OptimizedPrompt)
	} else {
		b.WriteString(in.Prompt)
	}
	if in.HeaderText != "" {
		fmt.Fprintf(&b, "\n\nReport header text: %s", in.HeaderText)
	}
	if in.FooterText != "" {
		fmt.Fprintf(&b, "\nReport footer text: %s", in.FooterText)
	}

	for _, table := range in.DataTables {
		writeTableSection(&b, table, len(in.DataTables) > 1)
	}

	if len(in.LookConfigs) > 0 {
		b.WriteString("\n\n--- Looker Charts ---")
		for _, look := range in.LookConfigs {
			fmt.Fprintf(&b, "\n- Chart `%s`: use `<img src=\"%s\">`", look.PlaceholderName, placeholder.LookImageTag(look.PlaceholderName))
		}
		b.WriteString("\n--- End Looker Charts ---")
	}

	if len(in.FilterConfigs) > 0 {
		b.WriteString("\n\n--- Report Filters ---")
		for _, fc := range in.FilterConfigs {
			label := fc.Label
			if label == "" {
				label = fc.FilterKey
			}
			fmt.Fprintf(&b, "\n- %s: show the applied value with %s", label, placeholder.FilterValueTag(fc.FilterKey))
		}
		b.WriteString("\n--- End Report Filters ---")
	}

	b.WriteString("\n\n--- HTML Template Generation Guidelines (Final Reminder) ---\n")
	b.WriteString("Output ONLY the raw HTML code. No descriptions, no explanations, no markdown like ```html ... ```.\n")
	b.WriteString("Start with `<!DOCTYPE html>` or `<html>` and end with `</html>`.")

	return b.String()
}

func writeTableSection(b *strings.Builder, table report.DataTable, multi bool) {
	title := "Data Schema"
	if multi {
		title = fmt.Sprintf("Data Schema for table `%s`", table.TablePlaceholderName)
	}
	fmt.Fprintf(b, "\n\n--- %s ---\n", title)
	if len(table.Schema) == 0 {
		b.WriteString("Schema: Not determined.")
	} else {
		fields := make([]string, 0, len(table.Schema))
		for _, f := range table.Schema {
			fields = append(fields, fmt.Sprintf("`%s` (Type: %s)", f.Name, f.Type))
		}
		b.WriteString("Schema: " + strings.Join(fields, ", "))
	}
	fmt.Fprintf(b, "\nTable rows placeholder: %s", placeholder.TableRowsTag(table.TablePlaceholderName))
	b.WriteString("\n--- End Data Schema ---")

	configs := table.FieldDisplayConfigs
	if len(configs) == 0 {
		for _, f := range table.Schema {
			configs = append(configs, report.FieldDisplayConfig{FieldName: f.Name})
		}
	}

	if len(configs) > 0 {
		b.WriteString("\n\n--- Field Display & Summary Instructions ---")
		var body, top, header []string
		for _, cfg := range configs {
			info := fieldInfo(cfg, table.FieldType(cfg.FieldName))
			if cfg.InBody() {
				body = append(body, info)
			}
			if cfg.IncludeAtTop {
				top = append(top, info+" -> Use placeholder: "+placeholder.TopTag(cfg.FieldName))
			}
			if cfg.IncludeInHeader {
				header = append(header, info+" -> Use placeholder: "+placeholder.HeaderTag(cfg.FieldName))
			}
		}
		if len(body) > 0 {
			b.WriteString("\nBody Fields:\n" + strings.Join(body, "\n"))
		}
		if len(top) > 0 {
			b.WriteString("\nTop Fields:\n" + strings.Join(top, "\n"))
		}
		if len(header) > 0 {
			b.WriteString("\nHeader Fields:\n" + strings.Join(header, "\n"))
		}
		b.WriteString("\n--- End Field Instructions ---")
	}

	if len(table.CalculationRows) > 0 {
		b.WriteString("\n\n--- Explicit Overall Calculation Rows ---")
		for i, calc := range table.CalculationRows {
			descs := make([]string, 0, len(calc.CalculatedValues))
			for _, cv := range calc.CalculatedValues {
				descs = append(descs, fmt.Sprintf("%s of '%s'", strings.ToUpper(cv.CalculationType), cv.TargetFieldName))
			}
			fmt.Fprintf(b, "\n- Row %d: Label %q, Placeholder `%s` for: %s.", i+1, calc.RowLabel, placeholder.Tag(calc.ValuesPlaceholderName), strings.Join(descs, "; "))
		}
		b.WriteString("\n--- End Explicit Calculation Rows ---")
	}
}

func fieldInfo(cfg report.FieldDisplayConfig, fieldType string) string {
	info := fmt.Sprintf("- `%s`", cfg.FieldName)

	var style []string
	if cfg.Alignment != "" {
		style = append(style, "align: "+cfg.Alignment)
	}
	if cfg.NumberFormat != "" {
		style = append(style, "format: "+cfg.NumberFormat)
	}
	if len(style) > 0 {
		info += fmt.Sprintf(" (Styling: %s)", strings.Join(style, "; "))
	}

	isString := strings.EqualFold(fieldType, "STRING")
	if isString && cfg.GroupSummaryAction != "" {
		info += fmt.Sprintf(" (Group Summary: %s)", cfg.GroupSummaryAction)
		repeat := cfg.RepeatGroupValue
		if repeat == "" {
			repeat = report.RepeatGroupValue
		}
		info += fmt.Sprintf(" (Repeat: %s)", repeat)
	}
	if report.IsNumericType(fieldType) && cfg.NumericAggregation != "" {
		info += fmt.Sprintf(" (Numeric Agg: %s)", cfg.NumericAggregation)
	}
	if cfg.ContextNote != "" {
		info += fmt.Sprintf(" (Context: %s)", cfg.ContextNote)
	}
	return info
}

// BuildRefinePrompt промпт доработки существующего шаблона
func BuildRefinePrompt(currentHTML, instruction string) string {
	var b strings.Builder
	b.WriteString("Modify the following HTML report template according to the instruction below.\n")
	b.WriteString("Keep every existing {{...}} placeholder unless the instruction explicitly says otherwise.\n\n")
	b.WriteString("--- Instruction ---\n")
	b.WriteString(instruction)
	b.WriteString("\n--- End Instruction ---\n\n--- Current Template ---\n")
	b.WriteString(currentHTML)
	b.WriteString("\n--- End Current Template ---\n\n")
	b.WriteString("Output ONLY the complete raw HTML code of the updated template, with no markdown or explanations.")
	return b.String()
}
