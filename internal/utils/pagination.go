// Package utils holds small helpers with no domain knowledge.
package utils

import (
	"strconv"
	"strings"
)

// IntOr parses s as a decimal int and returns def when s is blank or not a
// number. Surrounding spaces are ignored.
func IntOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// ParseID parses a positive decimal row id. Zero, negative and malformed
// values report ok=false.
func ParseID(s string) (id int64, ok bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
