package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// maxGlobResults caps the number of files returned from a single search.
const maxGlobResults = 100

// GlobTool finds files matching a glob pattern, newest first.
type GlobTool struct {
	workDir string
}

// GlobInput is the input schema for the glob tool.
type GlobInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

func NewGlobTool(workDir string) *GlobTool {
	return &GlobTool{workDir: workDir}
}

func (t *GlobTool) ID() string {
	return "glob"
}

func (t *GlobTool) Description() string {
	return `Fast file pattern matching tool that finds files by name using glob patterns.

Usage:
- Supports glob patterns like "**/*.js" or "src/**/*.ts"
- Returns matching file paths sorted by modification time (newest first)
- Use this tool when you need to find files by name patterns
- Results are limited to 100 files`
}

func (t *GlobTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The glob pattern to match files against (e.g. \"**/*.go\")"
			},
			"path": {
				"type": "string",
				"description": "The directory to search in. Defaults to the working directory."
			}
		},
		"required": ["pattern"]
	}`)
}

type globMatch struct {
	path    string
	modTime time.Time
}

func (t *GlobTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params GlobInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	if !doublestar.ValidatePattern(params.Pattern) {
		return nil, fmt.Errorf("invalid glob pattern: %s", params.Pattern)
	}

	searchDir := params.Path
	if searchDir == "" {
		searchDir = t.workDir
		if toolCtx != nil && toolCtx.WorkDir != "" {
			searchDir = toolCtx.WorkDir
		}
	} else if !filepath.IsAbs(searchDir) {
		base := t.workDir
		if toolCtx != nil && toolCtx.WorkDir != "" {
			base = toolCtx.WorkDir
		}
		searchDir = filepath.Join(base, searchDir)
	}

	var matches []globMatch
	err := doublestar.GlobWalk(os.DirFS(searchDir), params.Pattern, func(path string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || skippedPathSegment(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		matches = append(matches, globMatch{
			path:    filepath.Join(searchDir, path),
			modTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("glob search failed: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].modTime.Equal(matches[j].modTime) {
			return matches[i].modTime.After(matches[j].modTime)
		}
		return matches[i].path < matches[j].path
	})

	total := len(matches)
	truncated := false
	if total > maxGlobResults {
		matches = matches[:maxGlobResults]
		truncated = true
	}

	title := fmt.Sprintf("Glob %s", params.Pattern)
	if total == 0 {
		return &Result{
			Title:  title,
			Output: "No files matched the pattern",
			Metadata: map[string]any{
				"pattern": params.Pattern,
				"count":   0,
			},
		}, nil
	}

	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(m.path)
		sb.WriteString("\n")
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("(Showing %d of %d files. Use a more specific pattern to narrow results)\n", maxGlobResults, total))
	}

	return &Result{
		Title:  title,
		Output: strings.TrimRight(sb.String(), "\n"),
		Metadata: map[string]any{
			"pattern":   params.Pattern,
			"count":     len(matches),
			"truncated": truncated,
		},
	}, nil
}

// skippedPathSegment reports whether a relative path passes through a
// directory that searches should never descend into.
func skippedPathSegment(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".git" || seg == "node_modules" {
			return true
		}
	}
	return false
}
