package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lodestar-ai/lodestar/internal/permission"
	"github.com/lodestar-ai/lodestar/internal/tool"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// executeTools runs one round of tool calls. Gating is sequential in
// declaration order; approved calls execute concurrently; completion updates
// are flushed back in declaration order so observers always see results in
// the order the model declared the calls. Failures land in the tool parts,
// never abort the loop.
func (e *Engine) executeTools(t *turn, pending []*types.ToolPart) {
	if !t.snapshotted && e.snapshots != nil {
		for _, part := range pending {
			if tool.IsMutating(part.Tool) {
				if _, err := e.snapshots.Capture(t.ctx, t.session.ID, t.session.Revision); err != nil {
					e.log.Warn().Err(err).Str("session", t.session.ID).Msg("snapshot capture failed")
				}
				t.snapshotted = true
				break
			}
		}
	}

	approved := make([]bool, len(pending))
	for i, part := range pending {
		if t.aborted() {
			return
		}
		if err := e.authorizeTool(t, part); err != nil {
			e.failToolPart(t, part, err)
			continue
		}
		approved[i] = true
	}

	// Mark approved calls running in declaration order before any of them
	// produces output.
	for i, part := range pending {
		if !approved[i] {
			continue
		}
		part.State.Status = types.ToolRunning
		e.persistPart(t, t.partIndex(part), part, "")
	}

	results := make([]*tool.Result, len(pending))
	errs := make([]error, len(pending))

	var wg sync.WaitGroup
	for i, part := range pending {
		if !approved[i] {
			continue
		}
		wg.Add(1)
		go func(i int, part *types.ToolPart) {
			defer wg.Done()
			results[i], errs[i] = e.executor.Execute(t.ctx, part.Tool, part.State.Input, &tool.Context{
				SessionID: t.session.ID,
				MessageID: t.msg.ID,
				CallID:    part.CallID,
				Agent:     t.agent.Name,
				WorkDir:   t.session.Directory,
				AbortCh:   t.abortCh,
				OnMetadata: func(title string, metadata map[string]any) {
					part.State.Title = title
					if part.State.Metadata == nil {
						part.State.Metadata = make(map[string]any)
					}
					for k, v := range metadata {
						part.State.Metadata[k] = v
					}
					e.persistPart(t, t.partIndex(part), part, "")
				},
			})
		}(i, part)
	}
	wg.Wait()

	for i, part := range pending {
		if !approved[i] {
			continue
		}
		if errs[i] != nil {
			e.failToolPart(t, part, errs[i])
		} else {
			e.completeToolPart(t, part, results[i])
		}
		e.runHooks(t.ctx, ToolAfter, &HookContext{
			SessionID: t.session.ID,
			MessageID: t.msg.ID,
			Tool:      part.Tool,
			CallID:    part.CallID,
			Input:     part.State.Input,
			Result:    results[i],
			Err:       errs[i],
		})
	}
}

// authorizeTool applies hooks, the doom-loop guard, and the permission gate
// to one declared call.
func (e *Engine) authorizeTool(t *turn, part *types.ToolPart) error {
	if err := e.hooks.veto(t.ctx, &HookContext{
		SessionID: t.session.ID,
		MessageID: t.msg.ID,
		Tool:      part.Tool,
		CallID:    part.CallID,
		Input:     part.State.Input,
	}); err != nil {
		return &permission.DeniedError{
			SessionID: t.session.ID,
			CallID:    part.CallID,
			Message:   err.Error(),
		}
	}

	if e.gate != nil && e.doom.Check(t.session.ID, part.Tool, string(part.State.Input)) {
		req := permission.Request{
			Type:      permission.TypeDoomLoop,
			Pattern:   []string{part.Tool},
			SessionID: t.session.ID,
			MessageID: t.msg.ID,
			CallID:    part.CallID,
			Title:     fmt.Sprintf("Allow repeated %s call with identical input?", part.Tool),
		}
		if err := e.gate.Check(t.ctx, req, t.agent.Policy.For(permission.TypeDoomLoop)); err != nil {
			return err
		}
	}

	return e.checkPermission(t, part)
}

// checkPermission resolves the policy action for a call and asks the gate.
// Tools outside the gated set run freely.
func (e *Engine) checkPermission(t *turn, part *types.ToolPart) error {
	if e.gate == nil {
		return nil
	}

	req := permission.Request{
		SessionID: t.session.ID,
		MessageID: t.msg.ID,
		CallID:    part.CallID,
	}

	switch part.Tool {
	case "bash":
		command := stringInput(part.State.Input, "command")
		req.Type = permission.TypeBash
		req.Title = "Run: " + command
		req.Metadata = map[string]any{"command": command}

		commands, err := permission.ParseBashCommand(command)
		if err == nil {
			req.Pattern = permission.BuildPatterns(commands)
			if err := e.checkExternalPaths(t, part, commands); err != nil {
				return err
			}
		}
		return e.gate.Check(t.ctx, req, t.agent.Policy.BashAction(command))

	case "write", "edit":
		path := stringInput(part.State.Input, "filePath")
		req.Type = permission.TypeEdit
		req.Title = fmt.Sprintf("Allow %s to %s?", part.Tool, path)
		if path != "" {
			req.Pattern = []string{path}
			resolved := permission.ResolvePath(path, t.session.Directory)
			if !permission.IsWithinDir(resolved, t.session.Directory) {
				ext := req
				ext.Type = permission.TypeExternalDir
				ext.Title = "Allow writing outside the working directory: " + resolved
				if err := e.gate.Check(t.ctx, ext, t.agent.Policy.For(permission.TypeExternalDir)); err != nil {
					return err
				}
			}
		}
		return e.gate.Check(t.ctx, req, t.agent.Policy.For(permission.TypeEdit))

	case "webfetch":
		url := stringInput(part.State.Input, "url")
		req.Type = permission.TypeWebFetch
		req.Title = "Fetch: " + url
		if url != "" {
			req.Pattern = []string{url}
		}
		return e.gate.Check(t.ctx, req, t.agent.Policy.For(permission.TypeWebFetch))

	default:
		return nil
	}
}

// checkExternalPaths gates dangerous commands whose arguments point outside
// the session directory.
func (e *Engine) checkExternalPaths(t *turn, part *types.ToolPart, commands []permission.BashCommand) error {
	for _, cmd := range commands {
		if !permission.IsDangerousCommand(cmd.Name) {
			continue
		}
		for _, path := range permission.ExtractPaths(cmd) {
			resolved := permission.ResolvePath(path, t.session.Directory)
			if permission.IsWithinDir(resolved, t.session.Directory) {
				continue
			}
			req := permission.Request{
				Type:      permission.TypeExternalDir,
				Pattern:   []string{resolved},
				SessionID: t.session.ID,
				MessageID: t.msg.ID,
				CallID:    part.CallID,
				Title:     fmt.Sprintf("Allow %s on a path outside the working directory: %s", cmd.Name, resolved),
			}
			if err := e.gate.Check(t.ctx, req, t.agent.Policy.For(permission.TypeExternalDir)); err != nil {
				return err
			}
		}
	}
	return nil
}

// completeToolPart records a successful result. Attachments become file
// parts on the assistant message.
func (e *Engine) completeToolPart(t *turn, part *types.ToolPart, result *tool.Result) {
	part.State.Status = types.ToolCompleted
	part.State.Output = result.Output
	part.State.Title = result.Title
	if len(result.Metadata) > 0 {
		if part.State.Metadata == nil {
			part.State.Metadata = make(map[string]any)
		}
		for k, v := range result.Metadata {
			part.State.Metadata[k] = v
		}
	}
	part.State.Time.End = time.Now().UnixMilli()
	e.persistPart(t, t.partIndex(part), part, "")

	for _, att := range result.Attachments {
		fp := &types.FilePart{
			ID:   newPartID(),
			Type: "file",
			Path: att.Filename,
			MIME: att.MediaType,
			URL:  att.URL,
		}
		idx := t.appendPart(fp)
		e.persistPart(t, idx, fp, "")
	}
}

// failToolPart records a call failure as a structured error part.
func (e *Engine) failToolPart(t *turn, part *types.ToolPart, cause error) {
	part.State.Status = types.ToolError
	part.State.Reason = toolFailureReason(t, cause)
	part.State.Error = cause.Error()
	part.State.Time.End = time.Now().UnixMilli()
	e.persistPart(t, t.partIndex(part), part, "")
}

// toolFailureReason maps an execution failure to its part reason code.
func toolFailureReason(t *turn, err error) string {
	var verr *tool.ValidationError
	var terr *tool.TimeoutError
	switch {
	case permission.IsDenied(err):
		return "denied"
	case t.aborted() || errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, tool.ErrToolNotFound):
		return "not_found"
	case errors.As(err, &verr):
		return "invalid_arguments"
	case errors.As(err, &terr):
		return "timeout"
	default:
		return "execution_error"
	}
}

// stringInput extracts a string field from raw tool arguments.
func stringInput(input json.RawMessage, field string) string {
	var probe map[string]any
	if err := json.Unmarshal(input, &probe); err != nil {
		return ""
	}
	s, _ := probe[field].(string)
	return s
}
