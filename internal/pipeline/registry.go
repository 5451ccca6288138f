package pipeline

import (
	"sort"
	"strings"
)

// OutputParser post-processes the raw text of one model answer.
type OutputParser func(raw string) (string, error)

// ParserRegistry maps output parser kinds to their implementations.
type ParserRegistry struct{ parsers map[string]OutputParser }

func NewParserRegistry() *ParserRegistry {
	return &ParserRegistry{parsers: map[string]OutputParser{}}
}

func (r *ParserRegistry) Register(kind string, parser OutputParser) {
	r.parsers[strings.ToLower(kind)] = parser
}

func (r *ParserRegistry) Names() []string {
	out := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *ParserRegistry) Lookup(kind string) (OutputParser, bool) {
	parser, ok := r.parsers[strings.ToLower(kind)]
	return parser, ok
}

// StringParser returns the trimmed answer.
func StringParser(raw string) (string, error) {
	return strings.TrimSpace(raw), nil
}

// JSONParser extracts the JSON object body of an answer, dropping code fences and any prose around it.
func JSONParser(raw string) (string, error) {
	body := StripCodeFence(raw)
	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return body, nil
	}
	return body[start : end+1], nil
}

// DefaultParsers holds the built-in output parsers.
func DefaultParsers() *ParserRegistry {
	registry := NewParserRegistry()
	registry.Register("string", StringParser)
	registry.Register("json", JSONParser)
	return registry
}
