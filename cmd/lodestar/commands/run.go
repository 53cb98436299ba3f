package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/internal/engine"
	"github.com/lodestar-ai/lodestar/internal/store"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

var (
	runModel    string
	runAgent    string
	runContinue bool
	runSession  string
	runDir      string
	runTitle    string
	runJSON     bool
	runFiles    []string
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Run one prompt through the engine",
	Long: `Send a prompt and stream the assistant's reply to stdout.

Examples:
  lodestar run "Fix the bug in main.go"
  lodestar run --model anthropic/claude-sonnet-4 "Explain this code"
  lodestar run --continue "And now add a test for it"
  lodestar run --file main.go "Review this file"`,
	RunE: runPrompt,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model as provider/model")
	runCmd.Flags().StringVar(&runAgent, "agent", "", "Agent mode (chat|plan|configured name)")
	runCmd.Flags().BoolVarP(&runContinue, "continue", "c", false, "Continue the most recent session")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID to continue")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
	runCmd.Flags().StringVar(&runTitle, "title", "", "Title for a new session")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Emit the final message as JSON")
	runCmd.Flags().StringArrayVarP(&runFiles, "file", "f", nil, "File(s) to attach to the message")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message required: lodestar run \"your message\"")
	}

	workDir, err := workingDir(runDir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, workDir)
	if err != nil {
		return err
	}
	defer a.close()

	if runModel != "" {
		a.config.Model = runModel
	}

	session, err := resolveSession(cmd, a, workDir)
	if err != nil {
		return err
	}

	var files []types.FilePart
	for _, path := range runFiles {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read attachment %s: %w", path, err)
		}
		files = append(files, types.FilePart{Path: path, Content: string(content)})
	}

	stopPrompting := promptForPermissions(a)
	defer stopPrompting()

	printer := newTextPrinter(os.Stdout)
	msg, err := a.engine.SendMessage(ctx, engine.SendOptions{
		SessionID: session.ID,
		Text:      message,
		Files:     files,
		Agent:     runAgent,
		Model:     runModel,
		OnUpdate:  printer.update,
	})
	if err != nil {
		return err
	}
	fmt.Println()

	if runJSON {
		data, err := json.MarshalIndent(msg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}
	return nil
}

func resolveSession(cmd *cobra.Command, a *app, workDir string) (*types.Session, error) {
	ctx := cmd.Context()

	if runSession != "" {
		return a.store.GetSession(ctx, runSession)
	}
	if runContinue {
		sessions, err := a.store.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		var latest *types.Session
		for _, s := range sessions {
			if s.Directory != workDir {
				continue
			}
			if latest == nil || s.Time.Updated > latest.Time.Updated {
				latest = s
			}
		}
		if latest != nil {
			return latest, nil
		}
	}
	return a.store.CreateSession(ctx, store.CreateSessionOptions{
		Directory: workDir,
		Title:     runTitle,
	})
}

// promptForPermissions answers gate requests on the terminal. It returns an
// unsubscribe func.
func promptForPermissions(a *app) func() {
	var mu sync.Mutex
	stdin := bufio.NewReader(os.Stdin)

	return a.bus.Subscribe(bus.PermissionUpdated, func(event bus.Event) {
		data, ok := event.Data.(bus.PermissionUpdatedData)
		if !ok {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		fmt.Fprintf(os.Stderr, "\npermission: %s", data.Title)
		if len(data.Pattern) > 0 {
			fmt.Fprintf(os.Stderr, " [%s]", strings.Join(data.Pattern, " "))
		}
		fmt.Fprint(os.Stderr, "\nallow? (y)es / (a)lways / (n)o: ")

		line, err := stdin.ReadString('\n')
		reply := "reject"
		if err == nil {
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				reply = "once"
			case "a", "always":
				reply = "always"
			}
		}
		a.gate.Respond(data.ID, reply)
	})
}

// textPrinter writes text part deltas as they stream in.
type textPrinter struct {
	mu      sync.Mutex
	out     *os.File
	written map[string]int
}

func newTextPrinter(out *os.File) *textPrinter {
	return &textPrinter{out: out, written: make(map[string]int)}
}

func (p *textPrinter) update(msg *types.Message, parts []types.Part) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, part := range parts {
		tp, ok := part.(*types.TextPart)
		if !ok {
			continue
		}
		if n := p.written[tp.ID]; len(tp.Text) > n {
			fmt.Fprint(p.out, tp.Text[n:])
			p.written[tp.ID] = len(tp.Text)
		}
	}
}
