package textutil

import (
	"strings"
	"unicode/utf8"
)

// CompactStringMap trims keys and values, drops entries whose key or value is empty, and cuts
// values to maxValueLen runes when maxValueLen is positive. It returns nil when nothing remains.
func CompactStringMap(values map[string]string, maxValueLen int) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		result[key] = Truncate(value, maxValueLen)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// Truncate cuts value to at most limit runes. A non-positive limit leaves it unchanged.
func Truncate(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}
