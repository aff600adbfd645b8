package workflow

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/stepflow/types"
)

// TransformFunc is a pure, deterministic text transform.
type TransformFunc func(input string, params map[string]string) (string, error)

var transforms = map[string]TransformFunc{
	"normalize_text": normalizeText,
	"lowercase":      func(in string, _ map[string]string) (string, error) { return strings.ToLower(in), nil },
	"trim":           func(in string, _ map[string]string) (string, error) { return strings.TrimSpace(in), nil },
	"word_count":     func(in string, _ map[string]string) (string, error) { return strconv.Itoa(len(strings.Fields(in))), nil },
	"truncate":       truncate,
	"extract_json":   extractJSON,
}

// TransformNames lists the built-in transforms.
func TransformNames() []string {
	names := make([]string, 0, len(transforms))
	for n := range transforms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ApplyTransform runs the named transform.
func ApplyTransform(name, input string, params map[string]string) (string, error) {
	fn, ok := transforms[name]
	if !ok {
		return "", types.Errorf(types.ErrUnknownTransform, "unknown transform %q", name)
	}
	return fn(input, params)
}

// normalizeText collapses whitespace runs and drops control characters.
func normalizeText(in string, _ map[string]string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (r < 0x20 && r != '\n' && r != '\t' && r != '\r') || r == 0x7f {
			return -1
		}
		return r
	}, in)
	return strings.Join(strings.Fields(cleaned), " "), nil
}

func truncate(in string, params map[string]string) (string, error) {
	raw, ok := params["max_chars"]
	if !ok {
		return "", types.NewError(types.ErrInvalidStepConfig, "truncate requires max_chars")
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return "", types.Errorf(types.ErrInvalidStepConfig, "invalid max_chars %q", raw)
	}
	if utf8.RuneCountInString(in) <= n {
		return in, nil
	}
	return string([]rune(in)[:n]), nil
}

// maxJSONCandidates bounds how many '{' / '[' offsets extractJSON tries.
const maxJSONCandidates = 32

// extractJSON returns the first complete JSON object or array embedded in the
// input, compacted. Model output often wraps JSON in prose or code fences.
func extractJSON(in string, _ map[string]string) (string, error) {
	tried := 0
	for i := 0; i < len(in); i++ {
		if in[i] != '{' && in[i] != '[' {
			continue
		}
		if tried == maxJSONCandidates {
			return "", types.Errorf(types.ErrInvalidStepConfig, "no JSON value in the first %d candidates", maxJSONCandidates)
		}
		tried++
		dec := json.NewDecoder(strings.NewReader(in[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			continue
		}
		return buf.String(), nil
	}
	return "", types.NewError(types.ErrInvalidStepConfig, "no JSON value found in input")
}
