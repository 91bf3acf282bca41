package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResultKind tags how a result payload is encoded.
type ResultKind string

const (
	ResultStructured ResultKind = "structured"
	ResultRaw        ResultKind = "raw"
)

// Result is the payload attached to a terminal job: either a JSON document
// produced by the workflow or plain text such as an error description.
type Result struct {
	kind       ResultKind
	structured json.RawMessage
	raw        string
}

// Structured wraps a JSON document. The caller guarantees v is valid JSON.
func Structured(v json.RawMessage) Result {
	return Result{kind: ResultStructured, structured: append(json.RawMessage(nil), v...)}
}

// Raw wraps plain text.
func Raw(text string) Result {
	return Result{kind: ResultRaw, raw: text}
}

// ResultFromText classifies workflow output. A JSON object or array becomes a
// structured result; anything else, including bare JSON scalars, stays raw.
func ResultFromText(text string) Result {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return Structured(trimmed)
	}
	return Raw(text)
}

// ParseResult rebuilds a result from its stored kind and text.
func ParseResult(kind ResultKind, text string) (Result, error) {
	switch kind {
	case ResultStructured:
		if !json.Valid([]byte(text)) {
			return Result{}, fmt.Errorf("stored structured result is not valid JSON")
		}
		return Structured(json.RawMessage(text)), nil
	case ResultRaw:
		return Raw(text), nil
	case "":
		return ResultFromText(text), nil
	default:
		return Result{}, fmt.Errorf("unknown result kind %q", kind)
	}
}

// Kind returns the result tag.
func (r Result) Kind() ResultKind { return r.kind }

// IsZero reports whether the result was never set.
func (r Result) IsZero() bool { return r.kind == "" }

// Text returns the storage form: the JSON document or the raw text.
func (r Result) Text() string {
	if r.kind == ResultStructured {
		return string(r.structured)
	}
	return r.raw
}

// Value returns the decoded payload: a generic JSON value for structured
// results and the string itself for raw ones.
func (r Result) Value() (any, error) {
	if r.kind != ResultStructured {
		return r.raw, nil
	}
	var v any
	if err := json.Unmarshal(r.structured, &v); err != nil {
		return nil, fmt.Errorf("decode structured result: %w", err)
	}
	return v, nil
}

// MarshalJSON emits the structured document inline or the raw text as a JSON string.
func (r Result) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case ResultStructured:
		return r.structured, nil
	case ResultRaw:
		return json.Marshal(r.raw)
	default:
		return []byte("null"), nil
	}
}
