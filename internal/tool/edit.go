package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/lodestar-ai/lodestar/internal/bus"
)

const editDescription = `Performs exact string replacements in files.

Usage:
- The filePath parameter must be an absolute path
- The oldString must exist in the file (exact match required)
- The newString will replace oldString
- Use replaceAll to replace all occurrences
- The edit will FAIL if oldString is not unique (unless using replaceAll)`

// similarityThreshold is the minimum normalized similarity for the fuzzy
// fallback to accept a match.
const similarityThreshold = 0.7

// EditTool performs string replacement edits with a fuzzy fallback.
type EditTool struct {
	workDir string
	bus     *bus.Bus
}

// EditInput is the input for the edit tool.
type EditInput struct {
	FilePath   string `json:"filePath"`
	OldString  string `json:"oldString"`
	NewString  string `json:"newString"`
	ReplaceAll bool   `json:"replaceAll,omitempty"`
}

// NewEditTool creates an edit tool. The bus receives file.edited events and
// may be nil.
func NewEditTool(workDir string, b *bus.Bus) *EditTool {
	return &EditTool{workDir: workDir, bus: b}
}

func (t *EditTool) ID() string          { return "edit" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to edit"
			},
			"oldString": {
				"type": "string",
				"description": "The exact text to replace"
			},
			"newString": {
				"type": "string",
				"description": "The text to replace it with"
			},
			"replaceAll": {
				"type": "boolean",
				"description": "Replace all occurrences (default: false)"
			}
		},
		"required": ["filePath", "oldString", "newString"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params EditInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if params.OldString == params.NewString {
		return nil, fmt.Errorf("oldString and newString must be different")
	}

	if toolCtx != nil {
		toolCtx.LockPath(params.FilePath)
	}

	content, err := os.ReadFile(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	text := string(content)

	var newText string
	var count int
	var note string

	switch {
	case params.ReplaceAll:
		count = strings.Count(text, params.OldString)
		if count > 0 {
			newText = strings.ReplaceAll(text, params.OldString, params.NewString)
		}
	default:
		count = strings.Count(text, params.OldString)
		if count > 1 {
			return nil, fmt.Errorf("oldString appears %d times in file, use replaceAll or provide more context", count)
		}
		if count == 1 {
			newText = strings.Replace(text, params.OldString, params.NewString, 1)
		}
	}

	if count == 0 {
		newText, note, err = fuzzyReplace(text, params.OldString, params.NewString)
		if err != nil {
			return nil, err
		}
		count = 1
	}

	if err := t.write(params.FilePath, newText, toolCtx); err != nil {
		return nil, err
	}

	workDir := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		workDir = toolCtx.WorkDir
	}
	stats := diffContent(params.FilePath, text, newText, workDir)

	title := fmt.Sprintf("Edited %s", filepath.Base(params.FilePath))
	output := fmt.Sprintf("Replaced %d occurrence(s)", count)
	if note != "" {
		title += " (" + note + ")"
		output += " (" + note + ")"
	}

	return &Result{
		Title:  title,
		Output: output,
		Metadata: map[string]any{
			"file":         params.FilePath,
			"replacements": count,
			"diff":         stats.Patch,
			"additions":    stats.Additions,
			"deletions":    stats.Deletions,
		},
	}, nil
}

func (t *EditTool) write(path, content string, toolCtx *Context) error {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if t.bus != nil && toolCtx != nil && toolCtx.SessionID != "" {
		t.bus.Publish(bus.Event{
			Type: bus.FileEdited,
			Data: bus.FileEditedData{File: path},
		})
	}
	return nil
}

// fuzzyReplace recovers from an exact-match miss: first with line-ending
// normalization, then by locating the most similar block. Only a single
// occurrence is replaced on this path.
func fuzzyReplace(text, oldString, newString string) (string, string, error) {
	normalizedOld := normalizeLineEndings(oldString)
	normalizedText := normalizeLineEndings(text)

	if strings.Contains(normalizedText, normalizedOld) {
		return strings.Replace(normalizedText, normalizedOld, newString, 1), "normalized", nil
	}

	match, sim := findBestMatch(text, oldString)
	if match != "" && sim >= similarityThreshold {
		note := fmt.Sprintf("fuzzy, %.0f%% similarity", sim*100)
		return strings.Replace(text, match, newString, 1), note, nil
	}

	return "", "", fmt.Errorf("oldString not found in file, the content may have changed or the string doesn't exist")
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// findBestMatch scans for the line block most similar to target.
func findBestMatch(text, target string) (string, float64) {
	lines := strings.Split(text, "\n")
	targetLines := strings.Split(target, "\n")

	bestMatch := ""
	bestSimilarity := 0.0

	if len(targetLines) == 1 {
		for _, line := range lines {
			if sim := similarity(line, target); sim > bestSimilarity {
				bestSimilarity = sim
				bestMatch = line
			}
		}
		return bestMatch, bestSimilarity
	}

	targetLen := len(targetLines)
	for i := 0; i <= len(lines)-targetLen; i++ {
		block := strings.Join(lines[i:i+targetLen], "\n")
		if sim := similarity(block, target); sim > bestSimilarity {
			bestSimilarity = sim
			bestMatch = block
		}
	}
	return bestMatch, bestSimilarity
}

// similarity is normalized Levenshtein similarity in [0, 1].
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	// Length ratio approximation keeps pathological inputs cheap.
	if len(a) > 10000 || len(b) > 10000 {
		maxLen := max(len(a), len(b))
		minLen := min(len(a), len(b))
		return float64(minLen) / float64(maxLen)
	}

	dist := levenshtein.ComputeDistance(a, b)
	maxLen := max(len(a), len(b))
	return 1.0 - float64(dist)/float64(maxLen)
}
