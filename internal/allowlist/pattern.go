package allowlist

import "strings"

// Pattern is one entry of the allowlist grammar:
//
//	Pattern := ToolName | ToolName '(' ArgPrefix ')'
//
// ArgPrefix is matched as a raw string prefix, never a regex.
type Pattern struct {
	ToolName     string
	ArgPrefix    string
	HasArgs      bool // true iff the pattern carried an ArgPrefix
	unterminated bool // true iff the '(' was never closed — never matches
}

// ParsePattern parses one allowlist entry. An unterminated paren (an
// opening '(' with no matching trailing ')') yields a Pattern that can
// never match anything, per §4.3.
func ParsePattern(s string) Pattern {
	idx := strings.IndexByte(s, '(')
	if idx == -1 {
		return Pattern{ToolName: s}
	}
	if !strings.HasSuffix(s, ")") {
		return Pattern{ToolName: s[:idx], ArgPrefix: s[idx+1:], HasArgs: true, unterminated: true}
	}
	return Pattern{
		ToolName:  s[:idx],
		ArgPrefix: s[idx+1 : len(s)-1],
		HasArgs:   true,
	}
}

// Matches reports whether a command string satisfies this pattern: either
// the pattern names only a tool (matches any command for that tool), or
// the command equals ArgPrefix exactly or begins with ArgPrefix followed
// by a space.
func (p Pattern) Matches(command string) bool {
	if p.unterminated {
		return false
	}
	if !p.HasArgs {
		return true
	}
	if command == p.ArgPrefix {
		return true
	}
	return strings.HasPrefix(command, p.ArgPrefix+" ")
}

// String renders the pattern back into allowlist grammar form.
func (p Pattern) String() string {
	if !p.HasArgs {
		return p.ToolName
	}
	return p.ToolName + "(" + p.ArgPrefix + ")"
}
