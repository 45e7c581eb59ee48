// Package allowlist implements the command-prefix extractor and the
// invocation-match predicate used to decide whether a pending tool call
// is already pre-authorized by the user's session allowlist.
package allowlist

import (
	"strings"
)

// CommandPrefix returns the longest "stem" of command that appears in
// stemmables, extended by exactly one trailing token beyond the matched
// stem (so a stemmable of "git" turns "git status -v" into "git status").
// If the whole command equals a matched stem, the whole command is
// returned. Empty or whitespace-only input returns "".
func CommandPrefix(command string, stemmables []string) string {
	tokens := tokenize(command)
	if len(tokens) == 0 {
		return ""
	}

	// Greedily extend the prefix word by word while it remains a strict
	// prefix of some stemmable entry (entries may be multi-word).
	matched := 0 // number of tokens confirmed to form a stem-or-stem-prefix
	for i := 1; i <= len(tokens); i++ {
		candidate := strings.Join(tokens[:i], " ")
		if isStemOrPrefixOfStem(candidate, stemmables) {
			matched = i
			continue
		}
		break
	}

	if matched == 0 {
		return ""
	}

	matchedStr := strings.Join(tokens[:matched], " ")
	if matched == len(tokens) {
		return command
	}
	if isExactStem(matchedStr, stemmables) {
		// matchedStr is itself a recognized stem: return stem + one more token.
		return strings.Join(tokens[:matched+1], " ")
	}
	// matchedStr is only a strict prefix of some longer stemmable (e.g. "g"
	// is a prefix of "git" but not itself a stem) — no stem was actually
	// reached, so there is nothing to extend.
	return ""
}

// isStemOrPrefixOfStem reports whether candidate equals a stemmable or is a
// strict (space-respecting) prefix of one.
func isStemOrPrefixOfStem(candidate string, stemmables []string) bool {
	for _, s := range stemmables {
		if candidate == s {
			return true
		}
		if strings.HasPrefix(s, candidate+" ") {
			return true
		}
	}
	return false
}

func isExactStem(candidate string, stemmables []string) bool {
	for _, s := range stemmables {
		if candidate == s {
			return true
		}
	}
	return false
}

// tokenize splits on whitespace while respecting single/double quoting,
// mirroring the quote-awareness of the shell splitter but without
// treating chain operators specially.
func tokenize(s string) []string {
	var tokens []string
	var cur []byte
	var quote byte
	escaped := false

	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			cur = append(cur, c)
			escaped = false
			continue
		}
		if quote != 0 {
			cur = append(cur, c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\\':
			escaped = true
			cur = append(cur, c)
		case c == '\'' || c == '"':
			quote = c
			cur = append(cur, c)
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush()
		default:
			cur = append(cur, c)
		}
	}
	flush()
	return tokens
}
