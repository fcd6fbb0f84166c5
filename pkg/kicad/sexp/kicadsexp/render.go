package kicadsexp

import (
	"strings"
	"unicode"
)

// needsQuoting reports whether a bare atom would not survive a parse.
func needsQuoting(s string) bool {
	if s == "" || s[0] == '#' {
		return true
	}
	for _, r := range s {
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' || r == '\\' {
			return true
		}
	}
	return false
}

func renderAtom(s string, quoted bool) string {
	if !quoted && !needsQuoting(s) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// Render returns the textual form of s.
func Render(s Sexp) string {
	if s == nil {
		return ""
	}
	return s.String()
}
