package llm

import (
	"fmt"
	"os"
	"strings"
)

// ResolveAPIKey resolves a logical key reference:
//
//	env:NAME    value of environment variable NAME
//	file:/path  trimmed contents of the file
//	anything else is returned as a literal key
//
// An empty reference resolves to an empty key (backends that need no auth).
func ResolveAPIKey(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", nil
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		v, ok := os.LookupEnv(name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("api key env %s is not set", name)
		}
		return strings.TrimSpace(v), nil
	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimPrefix(ref, "file:")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read api key file: %w", err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("api key file %s is empty", path)
		}
		return key, nil
	default:
		return ref, nil
	}
}

// IsKeyReference reports whether ref is an indirect reference rather than a literal key.
func IsKeyReference(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == "" || strings.HasPrefix(ref, "env:") || strings.HasPrefix(ref, "file:")
}
