package placeholder

import (
	"errors"
	"fmt"
	"html"
	"strings"
)

// ErrInvalidDecision решение по сопоставлению не прошло проверку
var ErrInvalidDecision = errors.New("invalid mapping decision")

// DecisionError описывает первое неверное решение в наборе
type DecisionError struct {
	Index       int    `json:"index"`
	OriginalTag string `json:"original_tag"`
	Reason      string `json:"reason"`
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision %d (%s): %s", e.Index, e.OriginalTag, e.Reason)
}

func (e *DecisionError) Unwrap() error {
	return ErrInvalidDecision
}

// ApplyOptions параметры применения сопоставлений
type ApplyOptions struct {
	// RawStaticText вставляет static_text_value без экранирования HTML
	RawStaticText bool
}

// Apply переписывает HTML по набору решений.
// Набор проверяется целиком до изменений: при ошибке возвращается исходный HTML.
// Решения для отсутствующих тегов ничего не делают, TABLE_ROWS_* не трогаются.
func Apply(doc string, decisions []Decision, opts ApplyOptions) (string, error) {
	if err := Validate(decisions); err != nil {
		return doc, err
	}

	byTag := IndexDecisions(decisions)
	if len(byTag) == 0 {
		return doc, nil
	}

	// Один проход по исходным совпадениям: подстановки повторно не сканируются
	result := ReplaceTokens(doc, func(tag, key string) string {
		decision, ok := byTag[tag]
		if !ok {
			return tag
		}
		if strings.HasPrefix(key, TableRowsPrefix) {
			return tag
		}
		return replacement(decision, opts)
	})

	return result, nil
}

// IndexDecisions строит карту по original_tag, последнее решение побеждает
func IndexDecisions(decisions []Decision) map[string]Decision {
	byTag := make(map[string]Decision, len(decisions))
	for _, d := range decisions {
		byTag[d.OriginalTag] = d
	}
	return byTag
}

// Validate проверяет тип и полезную нагрузку каждого решения
func Validate(decisions []Decision) error {
	for i, d := range decisions {
		if reason := validateDecision(d); reason != "" {
			return &DecisionError{Index: i, OriginalTag: d.OriginalTag, Reason: reason}
		}
	}
	return nil
}

func validateDecision(d Decision) string {
	if d.OriginalTag == "" {
		return "original_tag is required"
	}
	if !d.MapType.Valid() {
		return fmt.Sprintf("unknown map_type %q", d.MapType)
	}

	present := map[string]bool{
		"map_to_schema_field":     nonEmpty(d.MapToSchemaField),
		"map_to_look_placeholder": nonEmpty(d.MapToLookPlaceholder),
		"map_to_filter_key":       nonEmpty(d.MapToFilterKey),
		"static_text_value":       nonEmpty(d.StaticTextValue),
		"fallback_value":          nonEmpty(d.FallbackValue),
	}
	// пустой static_text_value допустим
	if d.MapType == MapStaticText && d.StaticTextValue != nil {
		present["static_text_value"] = true
	}

	var allowed []string
	var required string
	switch d.MapType {
	case MapIgnore:
	case MapStaticText:
		required = "static_text_value"
	case MapStandardizeTop, MapStandardizeHeader:
		required = "map_to_schema_field"
		allowed = append(allowed, "fallback_value")
	case MapToLook:
		required = "map_to_look_placeholder"
	case MapToFilter:
		required = "map_to_filter_key"
	}

	if required != "" && !present[required] {
		return fmt.Sprintf("%s requires %s", d.MapType, required)
	}
	allowed = append(allowed, required)

	for field, set := range present {
		if set && !contains(allowed, field) {
			return fmt.Sprintf("%s does not accept %s", d.MapType, field)
		}
	}
	return ""
}

func replacement(d Decision, opts ApplyOptions) string {
	switch d.MapType {
	case MapIgnore:
		return ""
	case MapStaticText:
		if opts.RawStaticText {
			return *d.StaticTextValue
		}
		return html.EscapeString(*d.StaticTextValue)
	case MapStandardizeTop:
		return TopTag(*d.MapToSchemaField)
	case MapStandardizeHeader:
		return HeaderTag(*d.MapToSchemaField)
	case MapToLook:
		return LookImageTag(*d.MapToLookPlaceholder)
	case MapToFilter:
		return FilterValueTag(*d.MapToFilterKey)
	}
	return d.OriginalTag
}

// Fallbacks возвращает значения по умолчанию для канонических TOP/HEADER тегов
func Fallbacks(decisions []Decision) map[string]string {
	fallbacks := make(map[string]string)
	for _, d := range IndexDecisions(decisions) {
		if d.FallbackValue == nil || *d.FallbackValue == "" || !nonEmpty(d.MapToSchemaField) {
			continue
		}
		switch d.MapType {
		case MapStandardizeTop:
			fallbacks[TopTag(*d.MapToSchemaField)] = *d.FallbackValue
		case MapStandardizeHeader:
			fallbacks[HeaderTag(*d.MapToSchemaField)] = *d.FallbackValue
		}
	}
	return fallbacks
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
