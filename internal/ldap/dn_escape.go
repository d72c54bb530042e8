package ldap

import (
	"strings"
)

// EscapeDNValue escapes a value for use inside an RDN according to RFC 4514.
//
// Escaped characters:
//   - , + " \ < > ; anywhere in the value
//   - a leading # or space, and a trailing space
//   - NUL, written as \00
//
// Examples:
//   - "alice" → "alice"
//   - "Doe, John" → "Doe\, John"
//   - "#admin" → "\#admin"
func EscapeDNValue(value string) string {
	if value == "" || !needsDNEscaping(value) {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) + 8)

	last := len(value) - 1
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == 0:
			b.WriteString(`\00`)
			continue
		case strings.IndexByte(`,+"\<>;`, c) >= 0,
			c == '#' && i == 0,
			c == ' ' && (i == 0 || i == last):
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}

	return b.String()
}

// needsDNEscaping reports whether EscapeDNValue would change value.
func needsDNEscaping(value string) bool {
	if value == "" {
		return false
	}
	if value[0] == '#' || value[0] == ' ' || value[len(value)-1] == ' ' {
		return true
	}
	return strings.ContainsAny(value, ",+\"\\<>;\x00")
}
