package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

var (
	// ErrEmptyOutput reports a blank model answer.
	ErrEmptyOutput = errors.New("empty model output")
	// ErrNotObject reports an answer that decodes to something other than a JSON object.
	ErrNotObject = errors.New("model output is not a JSON object")
)

// ParseError describes a raw model answer that could not be turned into a Record.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model output %q: %v", truncate(e.Raw, 120), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RecordDecoder turns raw model text into a Record, optionally checking it against a schema.
type RecordDecoder struct {
	schema *jsonschema.Resolved
}

// NewRecordDecoder builds a decoder. When requiredFields is non-empty every record
// must be a JSON object carrying all of them.
func NewRecordDecoder(requiredFields []string) (RecordDecoder, error) {
	if len(requiredFields) == 0 {
		return RecordDecoder{}, nil
	}
	schema := &jsonschema.Schema{
		Type:     "object",
		Required: append([]string(nil), requiredFields...),
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return RecordDecoder{}, fmt.Errorf("resolve record schema: %w", err)
	}
	return RecordDecoder{schema: resolved}, nil
}

// Decode parses raw as a single JSON object. Markdown code fences around the object are tolerated.
func (d RecordDecoder) Decode(raw string) (Record, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return nil, &ParseError{Raw: raw, Err: ErrEmptyOutput}
	}

	decoder := json.NewDecoder(strings.NewReader(body))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if decoder.More() {
		return nil, &ParseError{Raw: raw, Err: errors.New("trailing data after JSON object")}
	}
	object, ok := value.(map[string]any)
	if !ok {
		return nil, &ParseError{Raw: raw, Err: ErrNotObject}
	}

	if d.schema != nil {
		var instance any
		if err := json.Unmarshal([]byte(body), &instance); err != nil {
			return nil, &ParseError{Raw: raw, Err: err}
		}
		if err := d.schema.Validate(instance); err != nil {
			return nil, &ParseError{Raw: raw, Err: err}
		}
	}
	return Record(object), nil
}

// StripCodeFence trims whitespace and removes a surrounding ``` or ```json fence.
func StripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// FormatValue renders a record value as a CSV cell.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	case bool:
		if typed {
			return "true"
		}
		return "false"
	default:
		var buffer bytes.Buffer
		encoder := json.NewEncoder(&buffer)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(typed); err != nil {
			return fmt.Sprint(typed)
		}
		return strings.TrimRight(buffer.String(), "\n")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
