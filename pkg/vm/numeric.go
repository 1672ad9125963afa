package vm

import (
	"strconv"
	"strings"
)

// ParseImmediateText parses a numeric literal in any of the lexer's
// accepted forms: decimal, `0x...`/`...h` hex, `0b...` binary, with an
// optional leading sign. It is exported so the assembler's operand
// classifier and the CPU core's JMP label-fallback share one
// implementation.
func ParseImmediateText(text string) (int64, bool) {
	v, ok := parseImmediateText(text)
	return v, ok
}

func parseImmediateText(text string) (int64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	if s == "" {
		return 0, false
	}

	var v uint64
	var err error
	switch {
	case strings.HasPrefix(strings.ToLower(s), "0x"):
		v, err = strconv.ParseUint(s[2:], 16, 32)
	case strings.HasPrefix(strings.ToLower(s), "0b"):
		v, err = strconv.ParseUint(s[2:], 2, 32)
	case len(s) > 1 && (s[len(s)-1] == 'h' || s[len(s)-1] == 'H') && isHexDigits(s[:len(s)-1]):
		v, err = strconv.ParseUint(s[:len(s)-1], 16, 32)
	case isDecimalDigits(s):
		v, err = strconv.ParseUint(s, 10, 32)
	default:
		return 0, false
	}
	if err != nil {
		return 0, false
	}
	if neg {
		return -int64(v), true
	}
	return int64(v), true
}

func isDecimalDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHexDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}
