package placeholder

// Category категория плейсхолдера по соглашению об именовании
type Category string

const (
	CategoryTableRows    Category = "TABLE_ROWS"
	CategoryTopField     Category = "TOP_FIELD"
	CategoryHeaderField  Category = "HEADER_FIELD"
	CategoryLookChart    Category = "LOOK_CHART"
	CategoryFilterValue  Category = "FILTER_VALUE"
	CategoryUnrecognized Category = "UNRECOGNIZED"
)

// Status результат обнаружения плейсхолдера
type Status string

const (
	StatusAutoMatchedTop    Status = "auto_matched_top"
	StatusAutoMatchedHeader Status = "auto_matched_header"
	StatusAutoMatchedTable  Status = "auto_matched_table"
	StatusAutoMatchedLook   Status = "auto_matched_look"
	StatusAutoMatchedFilter Status = "auto_matched_filter"
	StatusUnrecognized      Status = "unrecognized"
)

// MapType тип решения по сопоставлению
type MapType string

const (
	MapIgnore            MapType = "ignore"
	MapStaticText        MapType = "static_text"
	MapStandardizeTop    MapType = "standardize_top"
	MapStandardizeHeader MapType = "standardize_header"
	MapToLook            MapType = "map_to_look"
	MapToFilter          MapType = "map_to_filter"
)

// Valid сообщает, является ли тип одним из шести допустимых
func (m MapType) Valid() bool {
	switch m {
	case MapIgnore, MapStaticText, MapStandardizeTop, MapStandardizeHeader, MapToLook, MapToFilter:
		return true
	}
	return false
}

// Префиксы ключей внутри {{...}}
const (
	TableRowsPrefix   = "TABLE_ROWS_"
	TopPrefix         = "TOP_"
	HeaderPrefix      = "HEADER_"
	LookImagePrefix   = "LOOK_IMAGE_"
	FilterValuePrefix = "FILTER_VALUE_"
)

// FieldDescriptor поле схемы результата SQL запроса
type FieldDescriptor struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// LookConfig привязка Look к имени плейсхолдера
type LookConfig struct {
	LookID          string `json:"look_id"`
	PlaceholderName string `json:"placeholder_name"`
}

// FilterTarget цель фильтра: таблица данных или Look
type FilterTarget struct {
	TargetType string `json:"target_type"` // data_table | look
	TargetName string `json:"target_name"`
	FieldName  string `json:"field_name"`
}

// Типы целей фильтра
const (
	TargetDataTable = "data_table"
	TargetLook      = "look"
)

// FilterConfig фильтр интерфейса и его цели
type FilterConfig struct {
	FilterKey string         `json:"filter_key"`
	Label     string         `json:"label,omitempty"`
	Operator  string         `json:"operator,omitempty"`
	Targets   []FilterTarget `json:"targets"`
}

// Suggestion предлагаемое сопоставление
type Suggestion struct {
	MapToType  MapType `json:"map_to_type"`
	MapToValue string  `json:"map_to_value"`
	UsageAs    string  `json:"usage_as,omitempty"`
}

// Token найденный в HTML плейсхолдер
type Token struct {
	OriginalTag string      `json:"original_tag"`
	KeyInTag    string      `json:"key_in_tag"`
	Category    Category    `json:"category"`
	Status      Status      `json:"status"`
	Suggestion  *Suggestion `json:"suggestion"`
	TableName   string      `json:"table_name,omitempty"`
	Occurrences int         `json:"occurrences"`
	Editable    bool        `json:"editable"`
}

// DiscoveryReport результат сканирования шаблона
type DiscoveryReport struct {
	TemplateFound bool    `json:"template_found"`
	Placeholders  []Token `json:"placeholders"`
	ErrorMessage  string  `json:"error_message,omitempty"`
}

// Editable возвращает плейсхолдеры, доступные для ручного сопоставления
func (r DiscoveryReport) Editable() []Token {
	editable := make([]Token, 0, len(r.Placeholders))
	for _, token := range r.Placeholders {
		if token.Editable {
			editable = append(editable, token)
		}
	}
	return editable
}

// Decision решение оператора по одному плейсхолдеру
type Decision struct {
	OriginalTag          string  `json:"original_tag"`
	MapType              MapType `json:"map_type"`
	MapToSchemaField     *string `json:"map_to_schema_field,omitempty"`
	MapToLookPlaceholder *string `json:"map_to_look_placeholder,omitempty"`
	MapToFilterKey       *string `json:"map_to_filter_key,omitempty"`
	StaticTextValue      *string `json:"static_text_value,omitempty"`
	FallbackValue        *string `json:"fallback_value,omitempty"`
}

// Tag оборачивает ключ в двойные фигурные скобки
func Tag(key string) string {
	return "{{" + key + "}}"
}

// TopTag канонический плейсхолдер TOP поля
func TopTag(field string) string { return Tag(TopPrefix + field) }

// HeaderTag канонический плейсхолдер HEADER поля
func HeaderTag(field string) string { return Tag(HeaderPrefix + field) }

// LookImageTag канонический плейсхолдер изображения Look
func LookImageTag(name string) string { return Tag(LookImagePrefix + name) }

// FilterValueTag канонический плейсхолдер значения фильтра
func FilterValueTag(key string) string { return Tag(FilterValuePrefix + key) }

// TableRowsTag плейсхолдер строк таблицы данных
func TableRowsTag(name string) string { return Tag(TableRowsPrefix + name) }
