package workflow

import (
	"regexp"
	"strings"
)

// {{ name }} or {{ step.field }}
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\-]+)\s*\}\}`)

// Placeholders returns the distinct keys referenced in s, in order of first use.
func Placeholders(s string) []string {
	if !strings.Contains(s, "{{") {
		return nil
	}
	var keys []string
	seen := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		keys = append(keys, m[1])
	}
	return keys
}

// Substitute replaces every token whose key lookup resolves. Unresolved tokens
// are kept verbatim.
func Substitute(s string, lookup func(key string) (string, bool)) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(tok string) string {
		key := placeholderPattern.FindStringSubmatch(tok)[1]
		if v, ok := lookup(key); ok {
			return v
		}
		return tok
	})
}

// configPlaceholders collects the keys referenced by any string field of cfg.
func configPlaceholders(cfg StepConfig) []string {
	var keys []string
	cfg.mapStrings(func(s string) string {
		keys = append(keys, Placeholders(s)...)
		return s
	})
	return keys
}
