package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// ErrPartIndexOutOfRange is returned when UpdatePart addresses an index past
// the append position.
var ErrPartIndexOutOfRange = errors.New("part index out of range")

// AppendMessage persists a new message with its initial parts. The message is
// stamped with the session's current revision. Fails with ErrSessionNotFound
// before mutating anything.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg *types.Message, parts []types.Part) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	mu := s.writeLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	if msg.ID == "" {
		msg.ID = NewID("msg")
	}
	msg.SessionID = sessionID
	msg.Revision = session.Revision
	if msg.Time.Created == 0 {
		msg.Time.Created = nowMillis()
	}

	if err := s.fs.put(ctx, []string{"message", sessionID, msg.ID}, msg); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	for i, part := range parts {
		if err := s.putPart(ctx, sessionID, msg.ID, i, part); err != nil {
			return err
		}
	}

	s.bus.Publish(bus.Event{
		Type: bus.MessageCreated,
		Data: bus.MessageCreatedData{Info: msg},
	})
	return nil
}

// UpdateMessage persists message mutations made by the step loop. When the
// message carries a completion timestamp, message.completed is published with
// the full part list; otherwise message.updated.
func (s *Store) UpdateMessage(ctx context.Context, msg *types.Message) error {
	path := []string{"message", msg.SessionID, msg.ID}
	if !s.fs.exists(ctx, path) {
		return fmt.Errorf("message %s: %w", msg.ID, ErrNotFound)
	}

	mu := s.writeLock(msg.SessionID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.fs.put(ctx, path, msg); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	if msg.Time.Completed != nil {
		parts, err := s.ListParts(ctx, msg.SessionID, msg.ID)
		if err != nil {
			parts = nil
		}
		s.bus.Publish(bus.Event{
			Type: bus.MessageCompleted,
			Data: bus.MessageCompletedData{Info: msg, Parts: parts},
		})
		return nil
	}

	s.bus.Publish(bus.Event{
		Type: bus.MessageUpdated,
		Data: bus.MessageUpdatedData{Info: msg},
	})
	return nil
}

// GetMessage loads one message without its parts.
func (s *Store) GetMessage(ctx context.Context, sessionID, messageID string) (*types.Message, error) {
	var msg types.Message
	if err := s.fs.get(ctx, []string{"message", sessionID, messageID}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdatePart writes the part at index for a streaming update. index equal to
// the current part count appends; anything past that is
// ErrPartIndexOutOfRange. delta carries incremental text for observers and is
// not persisted. Publishes message.part.updated.
func (s *Store) UpdatePart(ctx context.Context, sessionID, messageID string, index int, part types.Part, delta string) error {
	if !s.fs.exists(ctx, []string{"message", sessionID, messageID}) {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}

	mu := s.writeLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	count, err := s.partCount(ctx, sessionID, messageID)
	if err != nil {
		return err
	}
	if index < 0 || index > count {
		return fmt.Errorf("index %d with %d parts: %w", index, count, ErrPartIndexOutOfRange)
	}

	if err := s.putPart(ctx, sessionID, messageID, index, part); err != nil {
		return err
	}

	s.bus.Publish(bus.Event{
		Type: bus.PartUpdated,
		Data: bus.PartUpdatedData{
			SessionID: sessionID,
			MessageID: messageID,
			Part:      part,
			Delta:     delta,
		},
	})
	return nil
}

// ListParts returns a message's parts in creation order.
func (s *Store) ListParts(ctx context.Context, sessionID, messageID string) ([]types.Part, error) {
	var parts []types.Part
	err := s.fs.scan(ctx, []string{"part", sessionID, messageID}, func(key string, data json.RawMessage) error {
		part, err := types.UnmarshalPart(data)
		if err != nil {
			return fmt.Errorf("part %s: %w", key, err)
		}
		parts = append(parts, part)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parts, nil
}

// ListMessages returns the session's messages with parts, ordered by message
// ID (creation order). sinceRevision filters to messages created at or after
// that revision; zero returns everything.
func (s *Store) ListMessages(ctx context.Context, sessionID string, sinceRevision int64) ([]types.MessageWithParts, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	var messages []*types.Message
	err := s.fs.scan(ctx, []string{"message", sessionID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil // skip unreadable records
		}
		if msg.Revision >= sinceRevision {
			messages = append(messages, &msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(messages, func(i, j int) bool {
		return ulidPart(messages[i].ID) < ulidPart(messages[j].ID)
	})

	result := make([]types.MessageWithParts, 0, len(messages))
	for _, msg := range messages {
		parts, err := s.ListParts(ctx, sessionID, msg.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, types.MessageWithParts{Info: msg, Parts: parts})
	}
	return result, nil
}

// TruncateAfter removes every message created after the given one, parts
// included. Used by undo; messageID "" clears the whole session history.
func (s *Store) TruncateAfter(ctx context.Context, sessionID, messageID string) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}

	mu := s.writeLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	keys, err := s.fs.list(ctx, []string{"message", sessionID})
	if err != nil {
		return err
	}

	boundary := ulidPart(messageID)
	for _, key := range keys {
		if messageID != "" && ulidPart(key) <= boundary {
			continue
		}
		if err := s.fs.deleteAll(ctx, []string{"part", sessionID, key}); err != nil {
			return err
		}
		if err := s.fs.delete(ctx, []string{"message", sessionID, key}); err != nil {
			return err
		}
		s.bus.Publish(bus.Event{
			Type: bus.MessageRemoved,
			Data: bus.MessageRemovedData{SessionID: sessionID, MessageID: key},
		})
	}
	return nil
}

// LastMessage returns the newest message, or ErrNotFound on an empty session.
func (s *Store) LastMessage(ctx context.Context, sessionID string) (*types.Message, error) {
	msgs, err := s.ListMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return msgs[len(msgs)-1].Info, nil
}

func (s *Store) putPart(ctx context.Context, sessionID, messageID string, index int, part types.Part) error {
	if err := s.fs.put(ctx, []string{"part", sessionID, messageID, partKey(index)}, part); err != nil {
		return fmt.Errorf("failed to persist part: %w", err)
	}
	return nil
}

func (s *Store) partCount(ctx context.Context, sessionID, messageID string) (int, error) {
	keys, err := s.fs.list(ctx, []string{"part", sessionID, messageID})
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
