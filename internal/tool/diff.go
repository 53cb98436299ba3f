package tool

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffStats summarizes a content change for tool metadata.
type diffStats struct {
	// Patch is the textual patch, prefixed with ---/+++ headers when a
	// path is known.
	Patch string

	Additions int
	Deletions int
}

// diffContent computes a line-based diff between before and after. The path
// is rendered relative to baseDir in the patch headers.
func diffContent(path, before, after, baseDir string) diffStats {
	if before == after {
		return diffStats{}
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	stats := diffStats{}
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stats.Additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			stats.Deletions += countLines(d.Text)
		}
	}

	patches := dmp.PatchMake(before, diffs)
	patchText := dmp.PatchToText(patches)
	if patchText == "" {
		return stats
	}

	var sb strings.Builder
	if rel := relativePath(path, baseDir); rel != "" {
		sb.WriteString(fmt.Sprintf("--- %s\n", rel))
		sb.WriteString(fmt.Sprintf("+++ %s\n", rel))
	}
	sb.WriteString(patchText)
	stats.Patch = sb.String()

	return stats
}

func relativePath(path, baseDir string) string {
	if path == "" {
		return ""
	}
	if baseDir == "" {
		return path
	}
	if rel, err := filepath.Rel(baseDir, path); err == nil {
		return rel
	}
	return path
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines
}
