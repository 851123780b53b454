// Package report подставляет живые данные в финальный шаблон отчета
package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"reportserver/placeholder"
)

// Row строка результата запроса с JSON-совместимыми значениями
type Row = map[string]interface{}

// Действия итогов по группе
const (
	GroupSubtotalOnly          = "SUBTOTAL_ONLY"
	GroupSubtotalAndGrandTotal = "SUBTOTAL_AND_GRAND_TOTAL"
	GroupGrandTotalOnly        = "GRAND_TOTAL_ONLY"
)

// Повтор значения группирующего поля
const (
	RepeatGroupValue = "REPEAT"
	ShowOnChange     = "SHOW_ON_CHANGE"
)

// Типы агрегатов
const (
	AggSum           = "SUM"
	AggAverage       = "AVERAGE"
	AggMin           = "MIN"
	AggMax           = "MAX"
	AggCount         = "COUNT"
	AggCountDistinct = "COUNT_DISTINCT"
)

// FieldDisplayConfig настройки отображения и итогов поля
type FieldDisplayConfig struct {
	FieldName          string `json:"field_name"`
	IncludeInBody      *bool  `json:"include_in_body,omitempty"`
	IncludeAtTop       bool   `json:"include_at_top,omitempty"`
	IncludeInHeader    bool   `json:"include_in_header,omitempty"`
	ContextNote        string `json:"context_note,omitempty"`
	Alignment          string `json:"alignment,omitempty"`
	NumberFormat       string `json:"number_format,omitempty"`
	GroupSummaryAction string `json:"group_summary_action,omitempty"`
	RepeatGroupValue   string `json:"repeat_group_value,omitempty"`
	NumericAggregation string `json:"numeric_aggregation,omitempty"`
}

// UnmarshalJSON принимает устаревшее имя subtotal_action
func (c *FieldDisplayConfig) UnmarshalJSON(data []byte) error {
	type plain FieldDisplayConfig
	var aux struct {
		plain
		SubtotalAction string `json:"subtotal_action"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = FieldDisplayConfig(aux.plain)
	if c.GroupSummaryAction == "" {
		c.GroupSummaryAction = aux.SubtotalAction
	}
	return nil
}

// InBody показывать ли поле в теле таблицы (по умолчанию да)
func (c FieldDisplayConfig) InBody() bool {
	return c.IncludeInBody == nil || *c.IncludeInBody
}

// Repeat повторять ли значение группирующего поля в каждой строке
func (c FieldDisplayConfig) Repeat() bool {
	return c.RepeatGroupValue == "" || strings.EqualFold(c.RepeatGroupValue, RepeatGroupValue)
}

// CalculatedValue одно вычисляемое значение строки расчета
type CalculatedValue struct {
	TargetFieldName string `json:"target_field_name"`
	CalculationType string `json:"calculation_type"`
	NumberFormat    string `json:"number_format,omitempty"`
	Alignment       string `json:"alignment,omitempty"`
}

// CalculationRow пользовательская итоговая строка по всей таблице
type CalculationRow struct {
	RowLabel              string            `json:"row_label"`
	ValuesPlaceholderName string            `json:"values_placeholder_name"`
	CalculatedValues      []CalculatedValue `json:"calculated_values"`
}

// DataTable таблица данных отчета
type DataTable struct {
	TablePlaceholderName string                        `json:"table_placeholder_name"`
	SQLQuery             string                        `json:"sql_query"`
	Schema               []placeholder.FieldDescriptor `json:"schema,omitempty"`
	FieldDisplayConfigs  []FieldDisplayConfig          `json:"field_display_configs,omitempty"`
	CalculationRows      []CalculationRow              `json:"calculation_row_configs,omitempty"`
}

// FieldConfig возвращает настройки поля или настройки по умолчанию
func (t DataTable) FieldConfig(name string) FieldDisplayConfig {
	for _, cfg := range t.FieldDisplayConfigs {
		if cfg.FieldName == name {
			return cfg
		}
	}
	return FieldDisplayConfig{FieldName: name}
}

// FieldType возвращает тип поля по схеме таблицы
func (t DataTable) FieldType(name string) string {
	for _, f := range t.Schema {
		if f.Name == name {
			return strings.ToUpper(f.Type)
		}
	}
	return ""
}

// HasField есть ли поле в схеме таблицы
func (t DataTable) HasField(name string) bool {
	for _, f := range t.Schema {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Definition то, что нужно рендереру из определения отчета
type Definition struct {
	ReportName            string
	DataTables            []DataTable
	LookConfigs           []placeholder.LookConfig
	FilterConfigs         []placeholder.FilterConfig
	UserAttributeMappings map[string]string
	PlaceholderMappings   []placeholder.Decision
}

// FilterValue значение фильтра; массивы и числа приводятся к строке через запятую
type FilterValue string

func (v *FilterValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s, err := filterValueString(raw)
	if err != nil {
		return err
	}
	*v = FilterValue(s)
	return nil
}

func filterValueString(raw interface{}) (string, error) {
	switch val := raw.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := filterValueString(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	}
	return "", fmt.Errorf("unsupported filter value %v", raw)
}

// Criteria критерии выполнения отчета
type Criteria struct {
	UserAttributes map[string]FilterValue `json:"user_attributes,omitempty"`
	DynamicFilters map[string]FilterValue `json:"dynamic_filters,omitempty"`
	FilterValues   map[string]FilterValue `json:"filter_values,omitempty"`
	LookImageURLs  map[string]string      `json:"look_image_urls,omitempty"`
}

// ParseCriteria разбирает filter_criteria_json; пустая строка означает отсутствие фильтров
func ParseCriteria(raw string) (Criteria, error) {
	var criteria Criteria
	if strings.TrimSpace(raw) == "" {
		return criteria, nil
	}
	if err := json.Unmarshal([]byte(raw), &criteria); err != nil {
		return criteria, fmt.Errorf("invalid filter criteria: %w", err)
	}
	return criteria, nil
}
