package permission

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// BashAction resolves the policy action for a command line. Every simple
// command in the line is matched separately and the most restrictive action
// wins: one denied command denies the line, one unmatched command asks.
// Unparseable input asks.
func (p Policy) BashAction(command string) Action {
	commands, err := ParseBashCommand(command)
	if err != nil || len(commands) == 0 {
		return ActionAsk
	}

	action := ActionAllow
	for _, cmd := range commands {
		switch p.commandAction(cmd) {
		case ActionDeny:
			return ActionDeny
		case ActionAsk:
			action = ActionAsk
		}
	}
	return action
}

// commandAction matches one command against the bash pattern map. Longer
// patterns are tried first so "git push *" wins over "git *" and both win
// over "*".
func (p Policy) commandAction(cmd BashCommand) Action {
	line := cmd.String()
	for _, pattern := range sortedPatterns(p.Bash) {
		if MatchCommandPattern(pattern, line) {
			return p.Bash[pattern]
		}
	}
	return ActionAsk
}

// sortedPatterns orders patterns longest first, ties broken lexically, so
// matching is deterministic and the most specific pattern wins.
func sortedPatterns(rules map[string]Action) []string {
	patterns := make([]string, 0, len(rules))
	for pattern := range rules {
		patterns = append(patterns, pattern)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})
	return patterns
}

// MatchCommandPattern checks a command line against a wildcard pattern.
// A single "*" matches any run of characters including path separators;
// patterns with "**" keep doublestar's path-aware semantics.
func MatchCommandPattern(pattern, command string) bool {
	if pattern == "*" {
		return true
	}
	if strings.Contains(pattern, "**") {
		matched, _ := doublestar.Match(pattern, command)
		return matched
	}
	if !strings.Contains(pattern, "*") {
		return pattern == command
	}
	return matchStarSegments(pattern, command)
}

// matchStarSegments greedily matches a single-star wildcard pattern against
// command. Unlike path globbing, "*" here crosses "/" so "find * -delete*"
// matches "find /tmp -delete".
func matchStarSegments(pattern, command string) bool {
	segs := strings.Split(pattern, "*")

	if !strings.HasPrefix(command, segs[0]) {
		return false
	}
	command = command[len(segs[0]):]

	last := segs[len(segs)-1]
	for _, seg := range segs[1 : len(segs)-1] {
		if seg == "" {
			continue
		}
		idx := strings.Index(command, seg)
		if idx < 0 {
			return false
		}
		command = command[idx+len(seg):]
	}

	return strings.HasSuffix(command, last)
}

// BuildPattern derives the approval pattern recorded when the user grants a
// command for the rest of the session. "git commit -m msg" becomes
// "git commit *", "ls -la" becomes "ls *".
func BuildPattern(cmd BashCommand) string {
	if cmd.Subcommand != "" {
		return cmd.Name + " " + cmd.Subcommand + " *"
	}
	return cmd.Name + " *"
}

// BuildPatterns derives deduplicated approval patterns for a command line.
// "cd" is skipped; directory changes are covered by the external-directory
// check instead.
func BuildPatterns(commands []BashCommand) []string {
	seen := make(map[string]bool)
	var patterns []string

	for _, cmd := range commands {
		if cmd.Name == "cd" {
			continue
		}
		pattern := BuildPattern(cmd)
		if !seen[pattern] {
			seen[pattern] = true
			patterns = append(patterns, pattern)
		}
	}

	return patterns
}
