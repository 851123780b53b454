package report

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"reportserver/placeholder"
)

// Param именованный параметр запроса BigQuery
type Param struct {
	Name  string
	Type  string
	Value interface{}
}

// Подсказки типов значений фильтра
const (
	hintAuto          = "AUTO"
	hintAutoDateOrNum = "AUTO_DATE_OR_NUM"
	hintRange         = "AUTO_DATE_OR_NUM_RANGE"
	hintString        = "STRING"
	hintStringPrefix  = "STRING_PREFIX"
	hintStringSuffix  = "STRING_SUFFIX"
	hintStringArray   = "STRING_ARRAY"
	hintBoolTrue      = "BOOL_TRUE_STR"
	hintBoolFalse     = "BOOL_FALSE_STR"
	hintNone          = "NONE"
)

type filterOperator struct {
	sql  string
	hint string
}

var filterOperators = map[string]filterOperator{
	"_eq":          {"=", hintAuto},
	"_ne":          {"!=", hintAuto},
	"_gte":         {">=", hintAutoDateOrNum},
	"_lte":         {"<=", hintAutoDateOrNum},
	"_gt":          {">", hintAutoDateOrNum},
	"_lt":          {"<", hintAutoDateOrNum},
	"_like":        {"LIKE", hintString},
	"_like_prefix": {"LIKE", hintStringPrefix},
	"_like_suffix": {"LIKE", hintStringSuffix},
	"_in":          {"IN", hintStringArray},
	"_is_null":     {"IS NULL", hintNone},
	"_is_not_null": {"IS NOT NULL", hintNone},
	"_between":     {"BETWEEN", hintRange},
	"_eq_true":     {"=", hintBoolTrue},
	"_eq_false":    {"=", hintBoolFalse},
}

// operatorSuffixes суффиксы от длинного к короткому
var operatorSuffixes = func() []string {
	suffixes := make([]string, 0, len(filterOperators))
	for suffix := range filterOperators {
		suffixes = append(suffixes, suffix)
	}
	sort.Slice(suffixes, func(i, j int) bool {
		if len(suffixes[i]) != len(suffixes[j]) {
			return len(suffixes[i]) > len(suffixes[j])
		}
		return suffixes[i] < suffixes[j]
	})
	return suffixes
}()

var columnPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SplitFilterKey разделяет ключ динамического фильтра на колонку и суффикс оператора
func SplitFilterKey(key string) (column, suffix string, ok bool) {
	for _, s := range operatorSuffixes {
		if strings.HasSuffix(key, s) && len(key) > len(s) {
			return key[:len(key)-len(s)], s, true
		}
	}
	return "", "", false
}

// normalizeOperator приводит оператор фильтра к суффиксу вида _eq
func normalizeOperator(op string) string {
	op = strings.ToLower(strings.TrimSpace(op))
	if op == "" {
		return "_eq"
	}
	if !strings.HasPrefix(op, "_") {
		op = "_" + op
	}
	return op
}

// FilterSet скомпилированные условия для одной таблицы данных
type FilterSet struct {
	Conditions []string
	Params     []Param
	// Applied отображаемые значения по имени колонки
	Applied map[string]string
	next    map[string]int
}

func newFilterSet() *FilterSet {
	return &FilterSet{Applied: make(map[string]string), next: make(map[string]int)}
}

func (f *FilterSet) paramName(prefix string) string {
	name := fmt.Sprintf("%s_p_%d", prefix, f.next[prefix])
	f.next[prefix]++
	return name
}

// add добавляет условие column <op> value
func (f *FilterSet) add(prefix, column, suffix, value string, table DataTable) error {
	if !columnPattern.MatchString(column) {
		return fmt.Errorf("invalid column name %q", column)
	}
	op, ok := filterOperators[suffix]
	if !ok {
		return fmt.Errorf("unknown filter operator %q", suffix)
	}

	quoted := "`" + column + "`"
	cfg := table.FieldConfig(column)
	fieldType := table.FieldType(column)
	if fieldType == "" {
		fieldType = "STRING"
	}

	switch op.hint {
	case hintNone:
		f.Conditions = append(f.Conditions, fmt.Sprintf("%s %s", quoted, op.sql))
		return nil
	case hintStringArray:
		items := splitList(value)
		name := f.paramName(prefix)
		f.Conditions = append(f.Conditions, fmt.Sprintf("%s IN UNNEST(@%s)", quoted, name))
		f.Params = append(f.Params, Param{Name: name, Type: "ARRAY<STRING>", Value: items})
		f.Applied[column] = strings.Join(items, ", ")
		return nil
	case hintRange:
		start, end, typ := parseRange(value)
		name := f.paramName(prefix)
		f.Conditions = append(f.Conditions, fmt.Sprintf("%s BETWEEN @%s_s AND @%s_e", quoted, name, name))
		f.Params = append(f.Params,
			Param{Name: name + "_s", Type: typ, Value: start},
			Param{Name: name + "_e", Type: typ, Value: end},
		)
		f.Applied[column] = FormatValue(start, cfg.NumberFormat, fieldType) + " - " + FormatValue(end, cfg.NumberFormat, fieldType)
		return nil
	}

	typ, typed, err := ParseParamValue(value, op.hint)
	if err != nil {
		return err
	}
	name := f.paramName(prefix)
	f.Conditions = append(f.Conditions, fmt.Sprintf("%s %s @%s", quoted, op.sql, name))
	f.Params = append(f.Params, Param{Name: name, Type: typ, Value: typed})
	f.Applied[column] = FormatValue(typed, cfg.NumberFormat, fieldType)
	return nil
}

// ParseParamValue определяет тип параметра по подсказке оператора
func ParseParamValue(value, hint string) (string, interface{}, error) {
	switch hint {
	case hintString:
		return "STRING", value, nil
	case hintStringPrefix:
		return "STRING", value + "%", nil
	case hintStringSuffix:
		return "STRING", "%" + value, nil
	case hintBoolTrue:
		return "BOOL", true, nil
	case hintBoolFalse:
		return "BOOL", false, nil
	case hintAuto, hintAutoDateOrNum:
		v := strings.TrimSpace(value)
		if d, err := civil.ParseDate(v); err == nil {
			return "DATE", d, nil
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return "INT64", n, nil
		}
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			return "FLOAT64", x, nil
		}
		if hint == hintAuto && (strings.EqualFold(v, "true") || strings.EqualFold(v, "false")) {
			return "BOOL", strings.EqualFold(v, "true"), nil
		}
		return "STRING", value, nil
	}
	return "", nil, fmt.Errorf("unsupported type hint %q", hint)
}

// parseRange разбирает "a,b"; одно значение означает диапазон из одной точки
func parseRange(value string) (interface{}, interface{}, string) {
	parts := strings.SplitN(value, ",", 2)
	first := strings.TrimSpace(parts[0])
	second := first
	if len(parts) == 2 {
		second = strings.TrimSpace(parts[1])
	}

	if a, err := civil.ParseDate(first); err == nil {
		if b, err := civil.ParseDate(second); err == nil {
			return a, b, "DATE"
		}
	}
	if a, err := strconv.ParseInt(first, 10, 64); err == nil {
		if b, err := strconv.ParseInt(second, 10, 64); err == nil {
			return a, b, "INT64"
		}
	}
	if a, err := strconv.ParseFloat(first, 64); err == nil {
		if b, err := strconv.ParseFloat(second, 64); err == nil {
			return a, b, "FLOAT64"
		}
	}
	return first, second, "STRING"
}

func splitList(value string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// CompileFilters строит условия для таблицы из атрибутов пользователя,
// динамических фильтров и настроенных фильтров интерфейса.
// Условия на колонки, которых нет в известной схеме таблицы, пропускаются.
func CompileFilters(def Definition, criteria Criteria, table DataTable) *FilterSet {
	set := newFilterSet()

	applies := func(column string) bool {
		return len(table.Schema) == 0 || table.HasField(column)
	}

	for _, attr := range sortedKeys(criteria.UserAttributes) {
		column, ok := def.UserAttributeMappings[attr]
		if !ok || column == "" || !applies(column) {
			continue
		}
		if err := set.add("ua", column, "_eq", string(criteria.UserAttributes[attr]), table); err != nil {
			log.Printf("Skipping user attribute filter %s on %s: %v", attr, table.TablePlaceholderName, err)
		}
	}

	for _, key := range sortedKeys(criteria.DynamicFilters) {
		column, suffix, ok := SplitFilterKey(key)
		if !ok {
			log.Printf("Skipping dynamic filter %s: no operator suffix", key)
			continue
		}
		if !applies(column) {
			continue
		}
		if err := set.add("df", column, suffix, string(criteria.DynamicFilters[key]), table); err != nil {
			log.Printf("Skipping dynamic filter %s on %s: %v", key, table.TablePlaceholderName, err)
		}
	}

	for _, fc := range def.FilterConfigs {
		value, ok := criteria.FilterValues[fc.FilterKey]
		if !ok || value == "" {
			continue
		}
		for _, target := range fc.Targets {
			if target.TargetType != placeholder.TargetDataTable || target.TargetName != table.TablePlaceholderName {
				continue
			}
			if !applies(target.FieldName) {
				continue
			}
			if err := set.add("uf", target.FieldName, normalizeOperator(fc.Operator), string(value), table); err != nil {
				log.Printf("Skipping filter %s on %s: %v", fc.FilterKey, table.TablePlaceholderName, err)
			}
		}
	}

	return set
}

// BuildQuery оборачивает исходный SQL условиями фильтров и сортировкой по группам
func BuildQuery(baseSQL string, filters *FilterSet, orderBy []string) string {
	sql := strings.TrimRight(strings.TrimSpace(baseSQL), ";")
	if len(filters.Conditions) == 0 && len(orderBy) == 0 {
		return sql
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM (")
	b.WriteString(sql)
	b.WriteString(") AS GenAIReportSubquery")
	if len(filters.Conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(filters.Conditions, " AND "))
	}
	if len(orderBy) > 0 {
		clauses := make([]string, 0, len(orderBy))
		for _, field := range orderBy {
			clauses = append(clauses, "`"+field+"` ASC")
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(clauses, ", "))
	}
	return b.String()
}

func sortedKeys(m map[string]FilterValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
