package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/llm-csv/internal/pipeline"
)

var (
	// ErrUnsupportedProvider reports a provider kind that is known but not implemented.
	ErrUnsupportedProvider = errors.New("unsupported model provider")
	// ErrUnknownProvider reports a provider kind outside the known set.
	ErrUnknownProvider = errors.New("unknown model provider")
	// ErrUnsupportedParser reports an output parser kind that cannot be built.
	ErrUnsupportedParser = errors.New("unsupported output parser")
)

// Provider kinds.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// Parser kinds.
const (
	ParserString = "string"
	ParserJSON   = "json"
	ParserCustom = "custom"
)

var providerAliases = map[string]string{
	"openai":    ProviderOpenAI,
	"chatgpt":   ProviderOpenAI,
	"anthropic": ProviderAnthropic,
	"claude":    ProviderAnthropic,
	"gemini":    ProviderGemini,
	"google":    ProviderGemini,
	"ollama":    ProviderOllama,
}

var parserAliases = map[string]string{
	"":                 ParserString,
	"string":           ParserString,
	"str":              ParserString,
	"stroutputparser":  ParserString,
	"json":             ParserJSON,
	"jsonoutputparser": ParserJSON,
	"custom":           ParserCustom,
	"customparser":     ParserCustom,
}

// NormalizeProvider maps a configured provider kind to its canonical name.
// Blank kinds default to openai.
func NormalizeProvider(kind string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(kind))
	if key == "" {
		return ProviderOpenAI, nil
	}
	canonical, ok := providerAliases[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, kind)
	}
	if canonical != ProviderOpenAI {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, kind)
	}
	return canonical, nil
}

// NormalizeParser maps a configured output parser kind to its canonical name.
func NormalizeParser(kind string) (string, error) {
	canonical, ok := parserAliases[strings.ToLower(strings.TrimSpace(kind))]
	if !ok || canonical == ParserCustom {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedParser, kind)
	}
	return canonical, nil
}

// ResolveParser returns the output parser for kind.
func ResolveParser(kind string) (pipeline.OutputParser, error) {
	canonical, err := NormalizeParser(kind)
	if err != nil {
		return nil, err
	}
	parser, ok := pipeline.DefaultParsers().Lookup(canonical)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedParser, kind)
	}
	return parser, nil
}
