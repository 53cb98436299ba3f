package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/lodestar-ai/lodestar/internal/provider"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

const titleSystemPrompt = `You are a title generator. You output ONLY a thread title, nothing else.

Rules:
- A single line, at most 50 characters
- Use -ing verbs for actions (Debugging, Implementing, Analyzing)
- Keep technical terms, numbers and filenames exact
- Drop articles and possessives
- Always output something meaningful`

const defaultTitle = "New session"

// errTitleTaken abandons the title write when the user renamed the session
// while generation was running.
var errTitleTaken = errors.New("title already set")

// titleTimeout bounds background title generation so an unresponsive
// provider never leaks a goroutine past the turn.
const titleTimeout = 30 * time.Second

// ensureTitle generates a session title from the first user message. It runs
// in the background and gives up quietly on any failure; child sessions and
// renamed sessions are left alone.
func (e *Engine) ensureTitle(sessionID, userText string) {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return
	}
	if session.ParentID != nil && *session.ParentID != "" {
		return
	}
	if session.Title != defaultTitle {
		return
	}

	prov, model, err := e.smallModel()
	if err != nil {
		return
	}

	stream, err := prov.Stream(ctx, &provider.Request{
		Model: model.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: titleSystemPrompt},
			{Role: schema.User, Content: "Generate a title for this conversation:\n\n" + userText},
		},
		MaxTokens: 50,
	})
	if err != nil {
		e.log.Debug().Err(err).Str("session", sessionID).Msg("title generation failed")
		return
	}
	defer stream.Close()

	var title strings.Builder
	for {
		d, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return
		}
		if d.Type == provider.DeltaText {
			title.WriteString(d.Text)
		}
	}

	text := firstLine(title.String())
	if text == "" {
		return
	}
	if len(text) > 100 {
		text = text[:97] + "..."
	}

	// The write goes through MutateSession so a concurrently finishing
	// turn's revision or state change is never clobbered by a stale copy.
	if _, err := e.store.MutateSession(ctx, sessionID, func(cur *types.Session) error {
		if cur.Title != defaultTitle {
			return errTitleTaken
		}
		cur.Title = text
		return nil
	}); err != nil && !errors.Is(err, errTitleTaken) {
		e.log.Debug().Err(err).Str("session", sessionID).Msg("title update failed")
	}
}

// smallModel resolves the model used for background work: the configured
// small model, falling back to the session default.
func (e *Engine) smallModel() (provider.Provider, *types.Model, error) {
	if e.config != nil && e.config.SmallModel != "" {
		if prov, model, err := e.providers.Resolve(e.config.SmallModel); err == nil {
			return prov, model, nil
		}
	}
	return e.providers.Resolve("")
}

// firstLine returns the first non-empty trimmed line of s.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
