package report

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"reportserver/placeholder"
)

// LookResolver возвращает URL изображения Look с учетом фильтров
type LookResolver interface {
	ImageURL(ctx context.Context, look placeholder.LookConfig, filters map[string]string) (string, error)
}

// URLTemplateResolver строит URL из шаблона с {look_id}; фильтры добавляются как f[field]=value
type URLTemplateResolver struct {
	Template string
}

func (r URLTemplateResolver) ImageURL(_ context.Context, look placeholder.LookConfig, filters map[string]string) (string, error) {
	if r.Template == "" {
		return "", nil
	}
	raw := strings.ReplaceAll(r.Template, "{look_id}", url.PathEscape(look.LookID))
	if len(filters) == 0 {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	query := u.Query()
	fields := make([]string, 0, len(filters))
	for field := range filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		query.Set("f["+field+"]", filters[field])
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// lookFilters значения фильтров интерфейса, нацеленных на Look
func lookFilters(def Definition, criteria Criteria, look placeholder.LookConfig) map[string]string {
	filters := make(map[string]string)
	for _, fc := range def.FilterConfigs {
		value, ok := criteria.FilterValues[fc.FilterKey]
		if !ok || value == "" {
			continue
		}
		for _, target := range fc.Targets {
			if target.TargetType == placeholder.TargetLook &&
				(target.TargetName == look.PlaceholderName || target.TargetName == look.LookID) {
				filters[target.FieldName] = string(value)
			}
		}
	}
	return filters
}
