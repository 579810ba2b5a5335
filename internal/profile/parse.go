package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrMalformedOutput is returned by Parse when a reply holds no usable JSON
// object.
var ErrMalformedOutput = errors.New("malformed model output")

// ExtractFirstObject returns the first {...} block of raw whose brace depth
// returns to zero. Braces inside JSON string literals do not count. When an
// opening brace is never balanced the scan restarts at the next one, so a
// stray brace in surrounding prose does not hide a later object. ok is false
// when no opening brace is balanced.
func ExtractFirstObject(raw string) (string, bool) {
	for offset := 0; offset < len(raw); {
		i := strings.IndexByte(raw[offset:], '{')
		if i < 0 {
			break
		}
		start := offset + i
		if end, ok := balancedEnd(raw, start); ok {
			return raw[start:end], true
		}
		offset = start + 1
	}
	return "", false
}

// balancedEnd returns the index just past the brace that closes raw[start].
func balancedEnd(raw string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// Parse recovers a profile from a model reply. Values of the wrong type are
// coerced where possible (a single string for a list, numbers for strings).
func Parse(raw string) (*CandidateProfile, error) {
	object, ok := ExtractFirstObject(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no balanced json object", ErrMalformedOutput)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(object), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	// a bare string is a common shortcut for the nested object
	if title, ok := data["apply_for"].(string); ok {
		data["apply_for"] = map[string]any{"job_title": title}
	}

	p := &CandidateProfile{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           p,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	p.normalize()
	return p, nil
}
