package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// defaultIgnorePatterns are directory names skipped unless listed explicitly.
var defaultIgnorePatterns = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	"dist",
	"build",
	"target",
	"__pycache__",
	".venv",
	".idea",
	".vscode",
	".DS_Store",
}

// LsTool lists the entries of a directory.
type LsTool struct {
	workDir string
}

// LsInput is the input schema for the ls tool.
type LsInput struct {
	Path   string   `json:"path,omitempty"`
	Ignore []string `json:"ignore,omitempty"`
}

// fileEntry is a single directory entry with its size.
type fileEntry struct {
	name  string
	size  int64
	isDir bool
}

func NewLsTool(workDir string) *LsTool {
	return &LsTool{workDir: workDir}
}

func (t *LsTool) ID() string {
	return "ls"
}

func (t *LsTool) Description() string {
	return `Lists files and directories in a given path.

Usage:
- The path parameter can be absolute or relative to the working directory
- Optionally provide glob patterns to ignore with the ignore parameter
- Common build and VCS directories are skipped by default
- Prefer the glob and grep tools when you know which files to look for`
}

func (t *LsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "The directory to list. Defaults to the working directory."
			},
			"ignore": {
				"type": "array",
				"items": {"type": "string"},
				"description": "Glob patterns for entries to skip"
			}
		}
	}`)
}

func (t *LsTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params LsInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	dir := params.Path
	if dir == "" {
		dir = t.workDir
		if toolCtx != nil && toolCtx.WorkDir != "" {
			dir = toolCtx.WorkDir
		}
	} else if !filepath.IsAbs(dir) {
		base := t.workDir
		if toolCtx != nil && toolCtx.WorkDir != "" {
			base = toolCtx.WorkDir
		}
		dir = filepath.Join(base, dir)
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", dir)
		}
		return nil, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var entries []fileEntry
	for _, de := range dirEntries {
		if shouldIgnore(de.Name(), params.Ignore) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, fileEntry{
			name:  de.Name(),
			size:  fi.Size(),
			isDir: de.IsDir(),
		})
	}

	// Directories first, each group alphabetical.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].isDir != entries[j].isDir {
			return entries[i].isDir
		}
		return entries[i].name < entries[j].name
	})

	var sb strings.Builder
	sb.WriteString(dir + "/\n")
	for _, e := range entries {
		if e.isDir {
			sb.WriteString(fmt.Sprintf("  [dir]  %s/\n", e.name))
		} else {
			sb.WriteString(fmt.Sprintf("  [file] %s (%d bytes)\n", e.name, e.size))
		}
	}
	if len(entries) == 0 {
		sb.WriteString("  (empty)\n")
	}

	return &Result{
		Title:  fmt.Sprintf("List %s", filepath.Base(dir)),
		Output: strings.TrimRight(sb.String(), "\n"),
		Metadata: map[string]any{
			"path":  dir,
			"count": len(entries),
		},
	}, nil
}

// shouldIgnore checks an entry name against the default and user patterns.
func shouldIgnore(name string, patterns []string) bool {
	for _, p := range defaultIgnorePatterns {
		if name == p {
			return true
		}
	}
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
