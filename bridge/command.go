package bridge

import (
	"fmt"
	"strings"
	"unicode"
)

// FormatCommand renders a chat broadcast attributed to the character.
func FormatCommand(name, text string) string {
	return fmt.Sprintf(`tellraw @a {"rawtext":[{"text":"%s%s§r: %s"}]}`, highlightCode, EscapeText(name), EscapeText(text))
}

// EscapeText makes s safe inside a quoted JSON string on a single line:
// backslashes and quotes are escaped and any run of whitespace or control
// characters becomes one space.
func EscapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pending = false
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
