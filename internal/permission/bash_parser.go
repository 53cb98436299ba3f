package permission

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// BashCommand is one simple command extracted from a shell command line.
type BashCommand struct {
	Name       string   // command name, e.g. "git"
	Args       []string // remaining words
	Subcommand string   // first non-flag argument, e.g. "commit"
}

// String rebuilds the command line for pattern matching.
func (c BashCommand) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ParseBashCommand parses a command line and returns every simple command it
// runs, including commands inside pipelines, chains and substitutions.
func ParseBashCommand(command string) ([]BashCommand, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	var commands []BashCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := callToCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

func callToCommand(call *syntax.CallExpr) *BashCommand {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &BashCommand{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		word := wordToString(arg)
		cmd.Args = append(cmd.Args, word)
		if cmd.Subcommand == "" && !strings.HasPrefix(word, "-") {
			cmd.Subcommand = word
		}
	}

	return cmd
}

// wordToString flattens a parsed word. Variable expansions keep their name
// and command substitutions collapse to "$()" so callers see them as dynamic.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// DangerousCommands modify the filesystem; their path arguments are checked
// against the working directory before execution.
var DangerousCommands = map[string]bool{
	"cd":    true,
	"rm":    true,
	"cp":    true,
	"mv":    true,
	"mkdir": true,
	"touch": true,
	"chmod": true,
	"chown": true,
	"rmdir": true,
	"dd":    true,
}

// IsDangerousCommand reports whether name is in the dangerous list.
func IsDangerousCommand(name string) bool {
	return DangerousCommands[name]
}

// ExtractPaths returns the non-flag arguments of cmd that look like paths.
func ExtractPaths(cmd BashCommand) []string {
	var paths []string
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if cmd.Name == "chmod" && isChmodMode(arg) {
			continue
		}
		paths = append(paths, arg)
	}
	return paths
}

// isChmodMode reports whether arg is a chmod mode like "755" or "u+x",
// as opposed to a file path.
func isChmodMode(arg string) bool {
	if arg == "" {
		return false
	}
	digits := true
	for i := 0; i < len(arg); i++ {
		if arg[i] < '0' || arg[i] > '9' {
			digits = false
			break
		}
	}
	if digits {
		return true
	}
	i := 0
	for i < len(arg) && strings.ContainsRune("ugoa", rune(arg[i])) {
		i++
	}
	return i < len(arg) && (arg[i] == '+' || arg[i] == '-' || arg[i] == '=')
}

// ResolvePath makes path absolute relative to workDir, expanding a leading
// "~" and resolving symlinks when the target exists.
func ResolvePath(path, workDir string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	} else if strings.HasPrefix(path, "~") {
		// ~user form, cannot expand reliably
		return path
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	path = filepath.Clean(path)

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// IsWithinDir reports whether path is dir itself or inside it.
func IsWithinDir(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)

	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}
