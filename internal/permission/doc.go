// Package permission gates tool execution behind user consent. It decides
// whether a requested tool invocation runs immediately, is refused, or
// suspends the turn until the user answers a prompt.
//
// # Overview
//
// Every check resolves to one of three actions:
//   - Allow: the operation proceeds without prompting
//   - Deny: the operation is refused with a *DeniedError
//   - Ask: the turn suspends until the user replies
//
// Policies bind actions to permission types. Bash commands get finer
// control through wildcard patterns matched per command.
//
// # Permission Types
//
//   - TypeBash: command execution, pattern-matched per simple command
//   - TypeEdit: file creation and modification
//   - TypeWebFetch: fetching external URLs
//   - TypeExternalDir: touching paths outside the working directory
//   - TypeDoomLoop: repeated identical tool calls
//
// # The Gate
//
// A Gate holds per-session approval state and the set of suspended asks.
// It is constructed with the event bus it publishes prompts on:
//
//	gate := permission.NewGate(eventBus)
//	err := gate.Check(ctx, permission.Request{
//		Type:      permission.TypeBash,
//		SessionID: sessionID,
//		Pattern:   []string{"git commit *"},
//		Title:     "git commit -m 'fix parser'",
//	}, permission.ActionAsk)
//
// Check with ActionAsk publishes a permission.updated event and blocks until
// Respond delivers the user's reply or ctx is cancelled:
//
//	gate.Respond(requestID, permission.ReplyOnce)   // run this one call
//	gate.Respond(requestID, permission.ReplyAlways) // and remember for the session
//	gate.Respond(requestID, permission.ReplyReject) // refuse, *DeniedError
//
// ReplyAlways approvals are remembered per (session, pattern) when the
// request carries patterns, per (session, type) otherwise. Rejections are
// never remembered: the user can be asked again for the same call later.
//
// # Policies
//
// Policy holds the configured action per type plus a bash pattern map:
//
//	policy := permission.Policy{
//		Edit:     permission.ActionAsk,
//		WebFetch: permission.ActionAllow,
//		Bash: map[string]permission.Action{
//			"git status*": permission.ActionAllow,
//			"git push*":   permission.ActionAsk,
//			"rm*":         permission.ActionDeny,
//			"*":           permission.ActionAsk,
//		},
//	}
//
// BashAction parses a command line with mvdan.cc/sh/v3, matches every simple
// command it contains (pipelines, && chains, substitutions) and returns the
// most restrictive action found. Longer patterns win over shorter ones, so
// "git push*" beats "git *" beats "*".
//
// # Bash Command Parsing
//
// ParseBashCommand extracts structured commands for matching and for path
// safety checks:
//
//	commands, err := permission.ParseBashCommand("git commit -m 'fix bug'")
//	// BashCommand{Name: "git", Subcommand: "commit", Args: ["-m", "fix bug"]}
//
// Commands in DangerousCommands (rm, mv, chmod, ...) have their path
// arguments extracted, resolved against the working directory and checked
// with IsWithinDir before execution.
//
// # Doom Loop Detection
//
// DoomLoopDetector counts consecutive identical tool calls per session and
// trips once the same call repeats DoomLoopThreshold times:
//
//	detector := permission.NewDoomLoopDetector()
//	if detector.Check(sessionID, "read", input) {
//		// escalate to an ask with TypeDoomLoop
//	}
//
// # Concurrency
//
// Gate and DoomLoopDetector are safe for concurrent use. Each suspended ask
// owns a buffered reply channel, so Respond never blocks and duplicate
// replies to the same request are dropped.
package permission
