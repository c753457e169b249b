package strings

import (
	"strings"
)

// DefaultCellMaxLen is the widest a table cell gets in osf output.
const DefaultCellMaxLen = 60

// MinTruncateLen is the smallest maxLen TruncateCell honours; it leaves room
// for one character plus "...".
const MinTruncateLen = 4

// TruncateCell makes s fit a single table cell: runs of whitespace,
// newlines included, collapse to one space, and a result longer than maxLen
// runes is cut and ends in "...". Values of maxLen below MinTruncateLen are
// raised to it.
func TruncateCell(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	// Count runes, not bytes, so multi-byte characters are never split.
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
