package executor

import (
	"fmt"
	"regexp"
	"strings"
)

// secretKeyPattern matches parameter keys that must be masked before a
// parameter set is recorded or logged.
var secretKeyPattern = regexp.MustCompile(`(?i)password|secret|key|token|auth`)

const (
	maxStringLen = 200
	maxBytesLen  = 100
	maxItems     = 10
	secretMask   = "***REDACTED***"
)

// SanitizeParams returns a copy of params safe to persist in a crash report
// or log line: secret-shaped keys are masked, long strings are truncated,
// large byte slices and sequences are elided.
func SanitizeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if secretKeyPattern.MatchString(k) {
			out[k] = secretMask
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		if len(val) > maxStringLen {
			return fmt.Sprintf("%s… (%d chars)", val[:maxStringLen], len(val))
		}
		return val
	case []byte:
		if len(val) > maxBytesLen {
			return fmt.Sprintf("<%d bytes>", len(val))
		}
		return val
	case map[string]any:
		return SanitizeParams(val)
	case []any:
		if len(val) > maxItems {
			return fmt.Sprintf("<list with %d items>", len(val))
		}
		sanitized := make([]any, len(val))
		for i, item := range val {
			sanitized[i] = sanitizeValue(item)
		}
		return sanitized
	default:
		return v
	}
}

// redactedKeyName is exposed for tests asserting on the masking regex
// without duplicating it.
func redactedKeyName(key string) bool {
	return secretKeyPattern.MatchString(strings.ToLower(key))
}
