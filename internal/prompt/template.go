// Package prompt renders chat prompts from row values.
package prompt

import (
	"strings"

	"github.com/temirov/llm-csv/internal/config"
	"github.com/temirov/llm-csv/internal/pipeline"
)

// Template holds the system and user templates of a prompt definition.
// Placeholders use the {key} form; {{ and }} produce literal braces.
type Template struct {
	Name   string
	System string
	User   string
	Keys   []string
}

// FromConfig builds a Template from a configured prompt.
func FromConfig(definition config.Prompt) Template {
	keys := make([]string, len(definition.Keys))
	copy(keys, definition.Keys)
	return Template{
		Name:   definition.Name,
		System: definition.System,
		User:   definition.User,
		Keys:   keys,
	}
}

// Values resolves a field by name. Absent fields return ok=false.
type Values interface {
	Get(key string) (string, bool)
}

// Render substitutes the template keys from values. Keys missing from values
// render as empty strings; placeholders not listed in Keys are left untouched.
func (t Template) Render(values Values) pipeline.LLMRequest {
	bound := make(map[string]string, len(t.Keys))
	for _, key := range t.Keys {
		value, _ := values.Get(key)
		bound[key] = value
	}
	return pipeline.LLMRequest{
		SystemPrompt: expand(t.System, bound),
		UserPrompt:   expand(t.User, bound),
	}
}

func expand(text string, bound map[string]string) string {
	if !strings.ContainsAny(text, "{}") {
		return text
	}
	var builder strings.Builder
	builder.Grow(len(text))
	for index := 0; index < len(text); index++ {
		current := text[index]
		switch {
		case current == '{' && index+1 < len(text) && text[index+1] == '{':
			builder.WriteByte('{')
			index++
		case current == '}' && index+1 < len(text) && text[index+1] == '}':
			builder.WriteByte('}')
			index++
		case current == '{':
			closing := strings.IndexByte(text[index+1:], '}')
			if closing < 0 {
				builder.WriteString(text[index:])
				return builder.String()
			}
			name := text[index+1 : index+1+closing]
			value, known := bound[strings.TrimSpace(name)]
			if !known {
				builder.WriteString(text[index : index+closing+2])
			} else {
				builder.WriteString(value)
			}
			index += closing + 1
		default:
			builder.WriteByte(current)
		}
	}
	return builder.String()
}

// MapValues adapts a plain map to Values.
type MapValues map[string]string

func (m MapValues) Get(key string) (string, bool) {
	value, ok := m[key]
	return value, ok
}
