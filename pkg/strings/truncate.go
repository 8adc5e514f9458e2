package strings

import (
	"strings"
)

// DefaultMaxLen is the width of free-text columns in table output, such as
// action errors carrying remote command output.
const DefaultMaxLen = 60

// MinTruncateLen is the smallest maxLen Truncate honours: one character plus "...".
const MinTruncateLen = 4

// Truncate flattens s to a single line with whitespace runs collapsed, and
// cuts it to maxLen runes including a trailing "..." when it is longer.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
