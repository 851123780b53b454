package generator

import "strings"

// FallbackHTML документ, сохраняемый вместо пустого ответа модели
const FallbackHTML = "<html><body><p>Error: AI failed to generate valid HTML. Placeholders may be missing.</p></body></html>"

// StripCodeFences убирает markdown-ограждение ``` вокруг ответа модели
func StripCodeFences(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), "\n"), "\n")
	if !strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		return s
	}
	if len(lines) >= 2 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		return strings.Join(lines[1:len(lines)-1], "\n")
	}
	return strings.Join(lines[1:], "\n")
}
