package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lodestar-ai/lodestar/internal/bus"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestReadNumbersLines(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "sample.txt", "one\ntwo\nthree\n")

	tool := NewReadTool(dir)
	input := json.RawMessage(fmt.Sprintf(`{"filePath": %q}`, path))

	result, err := tool.Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result.Output, "00001| one") {
		t.Errorf("expected numbered first line, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "00003| three") {
		t.Errorf("expected numbered third line, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "(End of file - total 3 lines)") {
		t.Errorf("expected end-of-file note, got %q", result.Output)
	}
}

func TestReadOffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	var content strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&content, "line %d\n", i)
	}
	path := writeTestFile(t, dir, "paged.txt", content.String())

	tool := NewReadTool(dir)
	input := json.RawMessage(fmt.Sprintf(`{"filePath": %q, "offset": 3, "limit": 2}`, path))

	result, err := tool.Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result.Output, "00003| line 3") {
		t.Errorf("expected read to start at offset, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "00004| line 4") {
		t.Errorf("expected second line of window, got %q", result.Output)
	}
	if strings.Contains(result.Output, "line 5") {
		t.Errorf("expected limit to cut the read, got %q", result.Output)
	}
	if !strings.Contains(result.Output, "read beyond line 4") {
		t.Errorf("expected continuation note for line 4, got %q", result.Output)
	}
	if total, ok := result.Metadata["totalLines"].(int); !ok || total != 10 {
		t.Errorf("expected totalLines 10, got %v", result.Metadata["totalLines"])
	}
}

func TestReadMissingAndDirectory(t *testing.T) {
	dir := t.TempDir()
	tool := NewReadTool(dir)

	input := json.RawMessage(fmt.Sprintf(`{"filePath": %q}`, filepath.Join(dir, "nope.txt")))
	if _, err := tool.Execute(context.Background(), input, testContext(t)); err == nil {
		t.Error("expected error for missing file")
	}

	input = json.RawMessage(fmt.Sprintf(`{"filePath": %q}`, dir))
	if _, err := tool.Execute(context.Background(), input, testContext(t)); err == nil {
		t.Error("expected error for directory")
	}
}

func TestReadBlocksEnvFiles(t *testing.T) {
	dir := t.TempDir()
	tool := NewReadTool(dir)

	blocked := writeTestFile(t, dir, ".env", "SECRET=hunter2\n")
	input := json.RawMessage(fmt.Sprintf(`{"filePath": %q}`, blocked))
	_, err := tool.Execute(context.Background(), input, testContext(t))
	if err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Errorf("expected block error for .env, got %v", err)
	}

	local := writeTestFile(t, dir, ".env.local", "SECRET=hunter2\n")
	input = json.RawMessage(fmt.Sprintf(`{"filePath": %q}`, local))
	if _, err := tool.Execute(context.Background(), input, testContext(t)); err == nil {
		t.Error("expected block error for .env.local")
	}

	sample := writeTestFile(t, dir, ".env.example", "SECRET=placeholder\n")
	input = json.RawMessage(fmt.Sprintf(`{"filePath": %q}`, sample))
	if _, err := tool.Execute(context.Background(), input, testContext(t)); err != nil {
		t.Errorf("expected .env.example to be readable, got %v", err)
	}
}

func TestReadEnvNameScoping(t *testing.T) {
	// A directory named ".env-configs" in the path must not block files
	// whose own name is harmless.
	dir := filepath.Join(t.TempDir(), ".envs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	path := writeTestFile(t, dir, "notes.txt", "plain text\n")

	tool := NewReadTool(dir)
	input := json.RawMessage(fmt.Sprintf(`{"filePath": %q}`, path))
	if _, err := tool.Execute(context.Background(), input, testContext(t)); err != nil {
		t.Errorf("expected file under .envs dir to be readable, got %v", err)
	}
}

func TestReadImageAttachment(t *testing.T) {
	dir := t.TempDir()
	// Minimal PNG header is enough for the extension-based detection.
	path := filepath.Join(dir, "pixel.png")
	if err := os.WriteFile(path, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, 0644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	tool := NewReadTool(dir)
	input := json.RawMessage(fmt.Sprintf(`{"filePath": %q}`, path))

	result, err := tool.Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(result.Attachments))
	}
	att := result.Attachments[0]
	if att.MediaType != "image/png" {
		t.Errorf("expected image/png, got %s", att.MediaType)
	}
	if !strings.HasPrefix(att.URL, "data:image/png;base64,") {
		t.Errorf("expected data URL, got %s", att.URL)
	}
}

func TestWriteCreatesFileAndParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deep", "nested", "out.txt")

	tool := NewWriteTool(dir, nil)
	input := json.RawMessage(fmt.Sprintf(`{"filePath": %q, "content": "hello world"}`, path))

	result, err := tool.Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("written file unreadable: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("unexpected content: %q", data)
	}
	if !strings.Contains(result.Output, "Successfully wrote 11 bytes") {
		t.Errorf("unexpected output: %q", result.Output)
	}
	if adds, ok := result.Metadata["additions"].(int); !ok || adds != 1 {
		t.Errorf("expected 1 addition for a new file, got %v", result.Metadata["additions"])
	}
}

func TestWriteOverwriteDiff(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "config.txt", "alpha\nbeta\ngamma\n")

	tool := NewWriteTool(dir, nil)
	input := json.RawMessage(fmt.Sprintf(`{"filePath": %q, "content": "alpha\ndelta\ngamma\n"}`, path))

	result, err := tool.Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if adds, _ := result.Metadata["additions"].(int); adds != 1 {
		t.Errorf("expected 1 addition, got %v", result.Metadata["additions"])
	}
	if dels, _ := result.Metadata["deletions"].(int); dels != 1 {
		t.Errorf("expected 1 deletion, got %v", result.Metadata["deletions"])
	}
	diff, _ := result.Metadata["diff"].(string)
	if !strings.Contains(diff, "config.txt") {
		t.Errorf("expected relative path in diff header, got %q", diff)
	}
}

func TestWritePublishesFileEdited(t *testing.T) {
	dir := t.TempDir()
	b := bus.New()
	defer b.Close()

	edited := make(chan string, 1)
	b.Subscribe(bus.FileEdited, func(e bus.Event) {
		if data, ok := e.Data.(bus.FileEditedData); ok {
			edited <- data.File
		}
	})

	path := filepath.Join(dir, "tracked.txt")
	tool := NewWriteTool(dir, b)
	toolCtx := testContext(t)
	input := json.RawMessage(fmt.Sprintf(`{"filePath": %q, "content": "x"}`, path))

	if _, err := tool.Execute(context.Background(), input, toolCtx); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	select {
	case file := <-edited:
		if file != path {
			t.Errorf("expected event for %s, got %s", path, file)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("file.edited event was not published")
	}
}

func TestEditReplaceSingle(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "main.go", "func old() {}\nfunc keep() {}\n")

	tool := NewEditTool(dir, nil)
	input := json.RawMessage(fmt.Sprintf(
		`{"filePath": %q, "oldString": "func old() {}", "newString": "func renamed() {}"}`, path))

	result, err := tool.Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "func renamed() {}") {
		t.Errorf("replacement missing: %q", data)
	}
	if strings.Contains(string(data), "func old()") {
		t.Errorf("old string still present: %q", data)
	}
	if n, _ := result.Metadata["replacements"].(int); n != 1 {
		t.Errorf("expected 1 replacement, got %v", result.Metadata["replacements"])
	}
}

func TestEditAmbiguousWithoutReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "dup.txt", "same\nsame\n")

	tool := NewEditTool(dir, nil)
	input := json.RawMessage(fmt.Sprintf(
		`{"filePath": %q, "oldString": "same", "newString": "different"}`, path))

	_, err := tool.Execute(context.Background(), input, testContext(t))
	if err == nil || !strings.Contains(err.Error(), "appears 2 times") {
		t.Errorf("expected ambiguity error, got %v", err)
	}
}

func TestEditReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "dup.txt", "same\nsame\nother\n")

	tool := NewEditTool(dir, nil)
	input := json.RawMessage(fmt.Sprintf(
		`{"filePath": %q, "oldString": "same", "newString": "different", "replaceAll": true}`, path))

	result, err := tool.Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if n, _ := result.Metadata["replacements"].(int); n != 2 {
		t.Errorf("expected 2 replacements, got %v", result.Metadata["replacements"])
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "same") {
		t.Errorf("old string still present: %q", data)
	}
}

func TestEditRejectsIdenticalStrings(t *testing.T) {
	tool := NewEditTool(t.TempDir(), nil)
	input := json.RawMessage(`{"filePath": "/tmp/x", "oldString": "a", "newString": "a"}`)

	if _, err := tool.Execute(context.Background(), input, testContext(t)); err == nil {
		t.Fatal("expected error for identical strings")
	}
}

func TestEditNormalizesLineEndings(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "crlf.txt", "first\r\nsecond\r\nthird\r\n")

	tool := NewEditTool(dir, nil)
	input := json.RawMessage(fmt.Sprintf(
		`{"filePath": %q, "oldString": "first\nsecond", "newString": "replaced"}`, path))

	result, err := tool.Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result.Output, "normalized") {
		t.Errorf("expected normalization note, got %q", result.Output)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "replaced") {
		t.Errorf("replacement missing: %q", data)
	}
}

func TestEditFuzzyMatch(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "fuzzy.txt", "the quick brown fox jumps over the lazy dog\n")

	tool := NewEditTool(dir, nil)
	// One word differs from the file content, similarity stays above 0.7.
	input := json.RawMessage(fmt.Sprintf(
		`{"filePath": %q, "oldString": "the quick brown fox jumped over the lazy dog", "newString": "a sentence"}`, path))

	result, err := tool.Execute(context.Background(), input, testContext(t))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(result.Output, "fuzzy") {
		t.Errorf("expected fuzzy note, got %q", result.Output)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "a sentence") {
		t.Errorf("replacement missing: %q", data)
	}
}

func TestEditNotFound(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "plain.txt", "nothing to see here\n")

	tool := NewEditTool(dir, nil)
	input := json.RawMessage(fmt.Sprintf(
		`{"filePath": %q, "oldString": "completely unrelated content", "newString": "x"}`, path))

	_, err := tool.Execute(context.Background(), input, testContext(t))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestDiffContentCounts(t *testing.T) {
	stats := diffContent("/work/file.txt", "a\nb\nc\n", "a\nx\nc\nd\n", "/work")
	if stats.Additions != 2 {
		t.Errorf("expected 2 additions, got %d", stats.Additions)
	}
	if stats.Deletions != 1 {
		t.Errorf("expected 1 deletion, got %d", stats.Deletions)
	}
	if !strings.Contains(stats.Patch, "--- file.txt") {
		t.Errorf("expected relative header, got %q", stats.Patch)
	}
}

func TestDiffContentNoChange(t *testing.T) {
	stats := diffContent("/work/file.txt", "same\n", "same\n", "/work")
	if stats.Patch != "" || stats.Additions != 0 || stats.Deletions != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}
}
