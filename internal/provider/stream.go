package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/lodestar-ai/lodestar/pkg/types"
)

// DeltaType discriminates normalized stream events.
type DeltaType string

const (
	// DeltaText carries an incremental fragment of answer text.
	DeltaText DeltaType = "text"
	// DeltaReasoning carries an incremental fragment of model reasoning.
	DeltaReasoning DeltaType = "reasoning"
	// DeltaToolCallStart announces a tool call: id and tool name.
	DeltaToolCallStart DeltaType = "tool_call_start"
	// DeltaToolCallArgs carries an incremental fragment of call arguments.
	DeltaToolCallArgs DeltaType = "tool_call_args"
	// DeltaToolCallEnd closes a tool call with its assembled arguments.
	DeltaToolCallEnd DeltaType = "tool_call_end"
	// DeltaUsage reports token accounting from the provider.
	DeltaUsage DeltaType = "usage"
	// DeltaDone is the final event of a successful stream.
	DeltaDone DeltaType = "done"
)

// Delta is one normalized streaming event. Adapters guarantee that every
// DeltaToolCallStart is closed by a DeltaToolCallEnd with complete arguments
// before DeltaDone.
type Delta struct {
	Type DeltaType

	// Text is the fragment for DeltaText and DeltaReasoning.
	Text string

	// CallID identifies the tool call for the three tool-call deltas.
	CallID string
	// ToolName is set on DeltaToolCallStart and DeltaToolCallEnd.
	ToolName string
	// Args is the raw fragment for DeltaToolCallArgs.
	Args string
	// Input is the assembled argument object on DeltaToolCallEnd. It is the
	// provider's literal output; callers validate it.
	Input json.RawMessage

	// Usage is set on DeltaUsage.
	Usage *types.TokenUsage

	// FinishReason is set on DeltaDone: "stop", "tool_use", "max_tokens", ...
	FinishReason string
}

// openCall tracks a tool call that has started but not yet ended.
type openCall struct {
	callID string
	name   string
	args   []byte
}

// Stream normalizes an Eino message stream into Delta events. It is a
// pull-based reader: Recv blocks for the next event, Close cancels.
// Cancellation of the originating context is checked at every Recv.
type Stream struct {
	ctx    context.Context
	reader *schema.StreamReader[*schema.Message]

	queue  []Delta
	opened []string
	open   map[string]*openCall
	finish string
	done   bool
}

// NewStream wraps an Eino stream reader.
func NewStream(ctx context.Context, reader *schema.StreamReader[*schema.Message]) *Stream {
	return &Stream{
		ctx:    ctx,
		reader: reader,
		open:   make(map[string]*openCall),
	}
}

// Recv returns the next normalized delta. It returns io.EOF after the final
// DeltaDone, and the context error as soon as the stream is cancelled.
func (s *Stream) Recv() (Delta, error) {
	for {
		if err := s.ctx.Err(); err != nil {
			return Delta{}, err
		}

		if len(s.queue) > 0 {
			d := s.queue[0]
			s.queue = s.queue[1:]
			return d, nil
		}

		if s.done {
			return Delta{}, io.EOF
		}

		msg, err := s.reader.Recv()
		if err == io.EOF {
			s.finalize()
			continue
		}
		if err != nil {
			return Delta{}, err
		}

		s.translate(msg)
	}
}

// Close releases the underlying stream.
func (s *Stream) Close() {
	s.reader.Close()
}

// translate appends the deltas carried by one raw chunk to the queue. Eino
// chunks are incremental: content and arguments arrive as fragments.
func (s *Stream) translate(msg *schema.Message) {
	if msg == nil {
		return
	}

	if msg.ReasoningContent != "" {
		s.queue = append(s.queue, Delta{Type: DeltaReasoning, Text: msg.ReasoningContent})
	}

	if msg.Content != "" {
		s.queue = append(s.queue, Delta{Type: DeltaText, Text: msg.Content})
	}

	for _, tc := range msg.ToolCalls {
		s.translateToolCall(tc)
	}

	if msg.ResponseMeta != nil {
		if u := msg.ResponseMeta.Usage; u != nil {
			s.queue = append(s.queue, Delta{
				Type: DeltaUsage,
				Usage: &types.TokenUsage{
					Input:  u.PromptTokens,
					Output: u.CompletionTokens,
				},
			})
		}
		if msg.ResponseMeta.FinishReason != "" {
			s.finish = msg.ResponseMeta.FinishReason
		}
	}
}

// translateToolCall routes one raw tool-call fragment. Chunks belonging to
// the same call are keyed by stream index when present, otherwise by call
// id; fragments with neither attach to the most recent open call.
func (s *Stream) translateToolCall(tc schema.ToolCall) {
	key := ""
	switch {
	case tc.Index != nil:
		key = fmt.Sprintf("idx:%d", *tc.Index)
	case tc.ID != "":
		key = "id:" + tc.ID
	case len(s.opened) > 0:
		key = s.opened[len(s.opened)-1]
	default:
		return
	}

	call, ok := s.open[key]
	if !ok {
		callID := tc.ID
		if callID == "" {
			callID = "call_" + ulid.Make().String()
		}
		call = &openCall{callID: callID, name: tc.Function.Name}
		s.open[key] = call
		s.opened = append(s.opened, key)
		s.queue = append(s.queue, Delta{
			Type:     DeltaToolCallStart,
			CallID:   call.callID,
			ToolName: call.name,
		})
	}

	if call.name == "" && tc.Function.Name != "" {
		call.name = tc.Function.Name
	}

	if tc.Function.Arguments != "" {
		call.args = append(call.args, tc.Function.Arguments...)
		s.queue = append(s.queue, Delta{
			Type:   DeltaToolCallArgs,
			CallID: call.callID,
			Args:   tc.Function.Arguments,
		})
	}
}

// finalize closes open tool calls in declaration order and queues the
// terminal events.
func (s *Stream) finalize() {
	for _, key := range s.opened {
		call := s.open[key]
		input := call.args
		if len(input) == 0 {
			input = []byte("{}")
		}
		s.queue = append(s.queue, Delta{
			Type:     DeltaToolCallEnd,
			CallID:   call.callID,
			ToolName: call.name,
			Input:    json.RawMessage(input),
		})
	}

	finish := s.finish
	if finish == "" {
		if len(s.opened) > 0 {
			finish = "tool_use"
		} else {
			finish = "stop"
		}
	}
	s.queue = append(s.queue, Delta{Type: DeltaDone, FinishReason: finish})
	s.done = true
}
