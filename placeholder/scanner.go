package placeholder

import (
	"regexp"
	"strings"
)

// tokenPattern грамматика плейсхолдера: {{ + любые символы кроме } + }}
var tokenPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

var bodyPattern = regexp.MustCompile(`(?i)<body[\s>]`)

// ReplaceTokens заменяет каждый плейсхолдер результатом fn за один проход.
// fn получает полный тег и ключ без пробелов; результат повторно не сканируется.
func ReplaceTokens(doc string, fn func(tag, key string) string) string {
	return tokenPattern.ReplaceAllStringFunc(doc, func(tag string) string {
		return fn(tag, strings.TrimSpace(tag[2:len(tag)-2]))
	})
}

// Discover находит все плейсхолдеры в HTML, классифицирует их и предлагает сопоставления.
// Документ не изменяется. Порядок результата совпадает с порядком первого появления.
func Discover(html string, schema []FieldDescriptor, looks []LookConfig, filters []FilterConfig) DiscoveryReport {
	report := DiscoveryReport{
		TemplateFound: true,
		Placeholders:  make([]Token, 0),
	}

	if strings.TrimSpace(html) == "" {
		report.TemplateFound = false
		report.ErrorMessage = "template is empty"
		return report
	}
	if !bodyPattern.MatchString(html) {
		report.TemplateFound = false
		report.ErrorMessage = "template has no <body> element"
	}

	m := newMatcher(schema, looks, filters)

	index := make(map[string]int)
	for _, match := range tokenPattern.FindAllStringSubmatch(html, -1) {
		tag := match[0]
		if i, seen := index[tag]; seen {
			report.Placeholders[i].Occurrences++
			continue
		}
		token := m.classify(tag, strings.TrimSpace(match[1]))
		token.Occurrences = 1
		index[tag] = len(report.Placeholders)
		report.Placeholders = append(report.Placeholders, token)
	}

	return report
}

// matcher индексы известных имен для классификации
type matcher struct {
	fields  map[string]string // нормализованное имя -> имя поля
	looks   map[string]string // имя плейсхолдера Look -> имя
	filters map[string]string // ключ фильтра -> ключ
}

func newMatcher(schema []FieldDescriptor, looks []LookConfig, filters []FilterConfig) *matcher {
	m := &matcher{
		fields:  make(map[string]string, len(schema)),
		looks:   make(map[string]string, len(looks)),
		filters: make(map[string]string, len(filters)),
	}
	for _, field := range schema {
		normalized := NormalizeName(field.Name)
		if normalized == "" {
			continue
		}
		// при коллизии побеждает первое поле схемы
		if _, exists := m.fields[normalized]; !exists {
			m.fields[normalized] = field.Name
		}
	}
	for _, look := range looks {
		if look.PlaceholderName != "" {
			m.looks[look.PlaceholderName] = look.PlaceholderName
		}
	}
	for _, filter := range filters {
		if filter.FilterKey != "" {
			m.filters[filter.FilterKey] = filter.FilterKey
		}
	}
	return m
}

func (m *matcher) classify(tag, key string) Token {
	token := Token{
		OriginalTag: tag,
		KeyInTag:    key,
		Category:    CategoryUnrecognized,
		Status:      StatusUnrecognized,
		Editable:    true,
	}

	switch {
	case strings.HasPrefix(key, TableRowsPrefix):
		token.Category = CategoryTableRows
		token.Status = StatusAutoMatchedTable
		token.TableName = strings.TrimPrefix(key, TableRowsPrefix)
		token.Editable = false

	case strings.HasPrefix(key, TopPrefix):
		token.Category = CategoryTopField
		if field, ok := m.fields[NormalizeName(strings.TrimPrefix(key, TopPrefix))]; ok {
			token.Status = StatusAutoMatchedTop
			token.Suggestion = &Suggestion{MapToType: MapStandardizeTop, MapToValue: field, UsageAs: "TOP"}
		}

	case strings.HasPrefix(key, HeaderPrefix):
		token.Category = CategoryHeaderField
		if field, ok := m.fields[NormalizeName(strings.TrimPrefix(key, HeaderPrefix))]; ok {
			token.Status = StatusAutoMatchedHeader
			token.Suggestion = &Suggestion{MapToType: MapStandardizeHeader, MapToValue: field, UsageAs: "HEADER"}
		}

	default:
		if name, ok := m.lookup(m.looks, key, LookImagePrefix); ok {
			token.Category = CategoryLookChart
			token.Status = StatusAutoMatchedLook
			token.Suggestion = &Suggestion{MapToType: MapToLook, MapToValue: name}
		} else if filterKey, ok := m.lookup(m.filters, key, FilterValuePrefix); ok {
			token.Category = CategoryFilterValue
			token.Status = StatusAutoMatchedFilter
			token.Suggestion = &Suggestion{MapToType: MapToFilter, MapToValue: filterKey}
		}
	}

	return token
}

// lookup точное совпадение ключа, в том числе в каноническом виде с префиксом
func (m *matcher) lookup(names map[string]string, key, canonicalPrefix string) (string, bool) {
	if name, ok := names[key]; ok {
		return name, true
	}
	if strings.HasPrefix(key, canonicalPrefix) {
		name, ok := names[strings.TrimPrefix(key, canonicalPrefix)]
		return name, ok
	}
	return "", false
}
