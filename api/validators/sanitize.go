package validators

import "strings"

// SanitizeString trims input and cuts it to maxLen bytes.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// LenientString extracts an optional free-form field decoded into any. A
// value that is not a string, longer than maxLen or not printable ASCII
// yields "", so callers fall back to their default instead of rejecting.
func LenientString(value any, maxLen int) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if maxLen > 0 && len(s) > maxLen {
		return ""
	}
	if err := validate.Var(s, "omitempty,printascii"); err != nil {
		return ""
	}
	return s
}
