package allowlist

import "github.com/apexion-ai/apexion/internal/shellsplit"

// ShellToolNames lists the canonical name and recognized synonyms for the
// shell-executing tool. Invocations of any of these names are subject to
// the chained-sub-command allowlist rule (§4.3).
var ShellToolNames = []string{"bash", "run_shell_command", "shell", "execute_command"}

// Invocation is the minimal shape doesToolInvocationMatch needs from a
// pending tool call: its resolved tool name(s) and, for shell-like tools,
// its command argument.
type Invocation struct {
	// ToolName is the invocation's primary registered name.
	ToolName string
	// Aliases are additional names (e.g. a tool's class name) that should
	// also be considered when matching a ToolName-only pattern.
	Aliases []string
	// Command is the shell command string, set only for shell-like tools.
	Command string
	HasCommand bool
}

// Matches reports whether inv satisfies at least one of patterns, applying
// the all-or-nothing chained-sub-command rule for shell tools: every
// top-level sub-command of inv.Command must independently match some
// pattern for the whole invocation to match.
func Matches(inv Invocation, patterns []Pattern) bool {
	names := candidateNames(inv)

	if inv.HasCommand && isShellLike(names) {
		subCommands := shellsplit.Split(inv.Command)
		if len(subCommands) == 0 {
			return false
		}
		for _, sub := range subCommands {
			if !anyPatternMatchesCommand(names, sub, patterns) {
				return false
			}
		}
		return true
	}

	for _, p := range patterns {
		if !nameMatches(names, p.ToolName) {
			continue
		}
		if !p.HasArgs {
			return true
		}
		if inv.HasCommand && p.Matches(inv.Command) {
			return true
		}
	}
	return false
}

// anyPatternMatchesCommand reports whether some pattern in patterns names
// one of names and matches the given sub-command string (or is a bare
// ToolName pattern, which matches any command for that tool).
func anyPatternMatchesCommand(names []string, command string, patterns []Pattern) bool {
	for _, p := range patterns {
		if !nameMatches(names, p.ToolName) {
			continue
		}
		if !p.HasArgs {
			return true
		}
		if p.Matches(command) {
			return true
		}
	}
	return false
}

func nameMatches(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}

func candidateNames(inv Invocation) []string {
	names := append([]string{inv.ToolName}, inv.Aliases...)
	if isShellLike(names) {
		names = append(names, ShellToolNames...)
	}
	return names
}

func isShellLike(names []string) bool {
	for _, n := range names {
		for _, s := range ShellToolNames {
			if n == s {
				return true
			}
		}
	}
	return false
}
