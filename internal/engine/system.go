package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lodestar-ai/lodestar/internal/agent"
	"github.com/lodestar-ai/lodestar/internal/snapshot"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// systemPrompt assembles the system prompt for one request: provider header,
// agent mode prompt, environment context, project rules, tool guidance.
func (e *Engine) systemPrompt(session *types.Session, ag *agent.Agent, providerID, modelID string) string {
	var sections []string

	if header := providerHeader(providerID); header != "" {
		sections = append(sections, header)
	}
	if ag != nil && ag.Prompt != "" {
		sections = append(sections, ag.Prompt)
	}
	sections = append(sections, environmentContext(session))
	if rules := e.customRules(session); rules != "" {
		sections = append(sections, rules)
	}
	sections = append(sections, toolGuidelines)

	return strings.Join(sections, "\n\n")
}

// providerHeader returns the provider-specific identity preamble.
func providerHeader(providerID string) string {
	switch providerID {
	case "anthropic":
		return `You are an AI coding assistant running inside a terminal session.
You have tools that read, write, and execute commands on the user's machine. Use them responsibly.`
	case "openai":
		return `You are a coding assistant with access to tools for reading, writing, and executing commands.
Follow the user's instructions carefully and use tools responsibly.`
	default:
		return `You are a coding assistant with tool access to the user's working directory.`
	}
}

// environmentContext describes where the model is working.
func environmentContext(session *types.Session) string {
	var b strings.Builder
	b.WriteString("# Environment\n\n")

	workDir := ""
	if session != nil {
		workDir = session.Directory
	}
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	fmt.Fprintf(&b, "Working directory: %s\n", workDir)
	fmt.Fprintf(&b, "Date: %s\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&b, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if branch := snapshot.Branch(workDir); branch != "" {
		fmt.Fprintf(&b, "Git branch: %s\n", branch)
	}
	return b.String()
}

// customRules loads project instruction files: AGENTS.md at the session
// root plus anything listed under config instructions. Missing files are
// skipped silently.
func (e *Engine) customRules(session *types.Session) string {
	workDir := e.workDir
	if session != nil && session.Directory != "" {
		workDir = session.Directory
	}

	locations := []string{
		filepath.Join(workDir, "AGENTS.md"),
		filepath.Join(workDir, ".lodestar", "rules.md"),
	}
	if e.config != nil {
		for _, extra := range e.config.Instructions {
			if !filepath.IsAbs(extra) {
				extra = filepath.Join(workDir, extra)
			}
			locations = append(locations, extra)
		}
	}

	var sections []string
	for _, loc := range locations {
		content, err := os.ReadFile(loc)
		if err != nil || len(content) == 0 {
			continue
		}
		sections = append(sections, strings.TrimSpace(string(content)))
	}
	if len(sections) == 0 {
		return ""
	}
	return "# Project rules\n\n" + strings.Join(sections, "\n\n")
}

const toolGuidelines = `# Tool usage

- Read a file before editing it; use edit for targeted changes and write for new files.
- Provide absolute paths to file tools.
- Prefer glob and grep over shell pipelines for searching.
- Keep todo lists current with todowrite when working through multi-step tasks.`
