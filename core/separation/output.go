package separation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnusableOutput means the prediction output matched none of the accepted shapes.
var ErrUnusableOutput = errors.New("no usable output from separation model")

// OutputShape names the accepted forms of model output.
type OutputShape string

const (
	// ShapeNamed is {"vocals": url, "instrumental"|"accompaniment": url}.
	ShapeNamed OutputShape = "named"
	// ShapeList is [vocals, instrumental?].
	ShapeList OutputShape = "list"
)

// Output is the parsed model output.
type Output struct {
	Shape           OutputShape
	VocalsURL       string
	InstrumentalURL *string
}

// ParseOutput extracts stem URLs from a raw prediction output.
func ParseOutput(raw json.RawMessage) (Output, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Output{}, fmt.Errorf("%w: empty output", ErrUnusableOutput)
	}

	switch trimmed[0] {
	case '{':
		return parseNamed(trimmed)
	case '[':
		return parseList(trimmed)
	default:
		return Output{}, fmt.Errorf("%w: unexpected output %s", ErrUnusableOutput, truncate(trimmed))
	}
}

func parseNamed(raw []byte) (Output, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrUnusableOutput, err)
	}

	vocals, ok := stringField(fields, "vocals")
	if !ok {
		return Output{}, fmt.Errorf("%w: object has no vocals url", ErrUnusableOutput)
	}

	out := Output{Shape: ShapeNamed, VocalsURL: vocals}
	if inst, ok := stringField(fields, "instrumental"); ok {
		out.InstrumentalURL = &inst
	} else if acc, ok := stringField(fields, "accompaniment"); ok {
		out.InstrumentalURL = &acc
	}
	return out, nil
}

func parseList(raw []byte) (Output, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrUnusableOutput, err)
	}
	if len(items) == 0 || len(items) > 2 {
		return Output{}, fmt.Errorf("%w: expected 1 or 2 outputs, got %d", ErrUnusableOutput, len(items))
	}

	urls := make([]string, 0, len(items))
	for i, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil || strings.TrimSpace(s) == "" {
			return Output{}, fmt.Errorf("%w: output %d is not a url", ErrUnusableOutput, i)
		}
		urls = append(urls, s)
	}

	out := Output{Shape: ShapeList, VocalsURL: urls[0]}
	if len(urls) == 2 {
		out.InstrumentalURL = &urls[1]
	}
	return out, nil
}

// stringField returns a non-empty string value; null and other types count as absent.
func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func truncate(b []byte) string {
	const max = 120
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
