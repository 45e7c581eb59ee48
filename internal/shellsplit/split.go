// Package shellsplit tokenizes a shell command string into its top-level
// chained sub-commands. It is a separator lexer only — it does not
// interpret redirections, parameter expansion, or globbing.
package shellsplit

// Split breaks command into the sub-commands joined by the top-level
// shell chaining operators &&, ||, |, and ;. A separator inside single
// quotes, double quotes, or backtick quotes, or immediately preceded by
// an unescaped backslash, is treated as literal text rather than a
// boundary. Empty fragments (e.g. from "a && && b" or leading/trailing
// separators) are discarded.
func Split(command string) []string {
	var parts []string
	var cur []byte

	var quote byte // 0, '\'', '"', or '`'
	escaped := false

	flush := func() {
		s := trimSpace(string(cur))
		if s != "" {
			parts = append(parts, s)
		}
		cur = cur[:0]
	}

	runes := []byte(command)
	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if escaped {
			cur = append(cur, c)
			escaped = false
			continue
		}

		if quote != 0 {
			if c == '\\' && quote != '\'' {
				// Inside double/backtick quotes, backslash still escapes.
				cur = append(cur, c)
				escaped = true
				continue
			}
			cur = append(cur, c)
			if c == quote {
				quote = 0
			}
			continue
		}

		switch c {
		case '\\':
			cur = append(cur, c)
			escaped = true
			continue
		case '\'', '"', '`':
			quote = c
			cur = append(cur, c)
			continue
		case '&':
			if i+1 < len(runes) && runes[i+1] == '&' {
				flush()
				i++
				continue
			}
			cur = append(cur, c)
		case '|':
			if i+1 < len(runes) && runes[i+1] == '|' {
				flush()
				i++
				continue
			}
			flush()
		case ';':
			flush()
		default:
			cur = append(cur, c)
		}
	}
	flush()

	return parts
}

func trimSpace(s string) string {
	start := 0
	for start < len(s) && isSpace(s[start]) {
		start++
	}
	end := len(s)
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
