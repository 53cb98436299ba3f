package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodestar-ai/lodestar/internal/tool"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

type stubCaller struct {
	params *sdkmcp.CallToolParams
	result *sdkmcp.CallToolResult
	err    error
}

func (s *stubCaller) CallTool(ctx context.Context, params *sdkmcp.CallToolParams) (*sdkmcp.CallToolResult, error) {
	s.params = params
	return s.result, s.err
}

func TestWrapName(t *testing.T) {
	tests := []struct {
		server, tool, want string
	}{
		{"calc", "add", "mcp_calc_add"},
		{"my-server", "do.thing", "mcp_my_server_do_thing"},
		{"a b", "T00l", "mcp_a_b_T00l"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WrapName(tt.server, tt.tool))
	}
}

func TestIsWrapped(t *testing.T) {
	assert.True(t, IsWrapped("mcp_calc_add"))
	assert.False(t, IsWrapped("bash"))
}

func TestMarshalSchema(t *testing.T) {
	assert.JSONEq(t, `{"type":"object"}`, string(marshalSchema(nil)))

	raw := json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"}}}`)
	assert.JSONEq(t, string(raw), string(marshalSchema(raw)))
}

func TestWrapperExecutesRemoteCall(t *testing.T) {
	caller := &stubCaller{result: &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: "4"},
		},
	}}
	w := newWrapper("calc", "add", "Adds numbers.", json.RawMessage(`{"type":"object"}`), caller)

	assert.Equal(t, "mcp_calc_add", w.ID())
	assert.Equal(t, "Adds numbers.", w.Description())

	result, err := w.Execute(context.Background(), json.RawMessage(`{"a":2,"b":2}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "4", result.Output)
	assert.Equal(t, "mcp_calc_add", result.Title)

	// The remote call carries the unprefixed name and parsed arguments.
	require.NotNil(t, caller.params)
	assert.Equal(t, "add", caller.params.Name)
	args, ok := caller.params.Arguments.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), args["a"])
}

func TestWrapperToolError(t *testing.T) {
	caller := &stubCaller{result: &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "division by zero"}},
	}}
	w := newWrapper("calc", "div", "", json.RawMessage(`{"type":"object"}`), caller)

	_, err := w.Execute(context.Background(), json.RawMessage(`{}`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func TestWrapperTransportError(t *testing.T) {
	caller := &stubCaller{err: errors.New("connection lost")}
	w := newWrapper("calc", "add", "", json.RawMessage(`{"type":"object"}`), caller)

	_, err := w.Execute(context.Background(), json.RawMessage(`{}`), nil)
	assert.ErrorContains(t, err, "connection lost")
}

func TestWrapperRejectsMalformedInput(t *testing.T) {
	caller := &stubCaller{}
	w := newWrapper("calc", "add", "", json.RawMessage(`{"type":"object"}`), caller)

	_, err := w.Execute(context.Background(), json.RawMessage(`not json`), nil)
	require.Error(t, err)
	assert.Nil(t, caller.params, "malformed input must not reach the server")
}

func TestConnectDisabledServer(t *testing.T) {
	m := NewManager()
	t.Cleanup(m.Close)

	disabled := false
	m.Connect(context.Background(), map[string]types.MCPConfig{
		"calc": {Type: "local", Command: []string{"nonexistent"}, Enabled: &disabled},
	})

	status := m.Status()
	require.Len(t, status, 1)
	assert.Equal(t, StatusDisabled, status[0].Status)
	assert.Zero(t, status[0].ToolCount)
}

func TestConnectInvalidConfigs(t *testing.T) {
	m := NewManager()
	t.Cleanup(m.Close)

	m.Connect(context.Background(), map[string]types.MCPConfig{
		"nocmd":   {Type: "local"},
		"nourl":   {Type: "remote"},
		"unknown": {Type: "carrier-pigeon"},
	})

	byName := make(map[string]ServerStatus)
	for _, s := range m.Status() {
		byName[s.Name] = s
	}
	require.Len(t, byName, 3)
	for name, s := range byName {
		assert.Equal(t, StatusFailed, s.Status, name)
		assert.NotEmpty(t, s.Error, name)
	}
}

func TestRegisterSkipsUnconnectedServers(t *testing.T) {
	m := NewManager()
	t.Cleanup(m.Close)

	m.Connect(context.Background(), map[string]types.MCPConfig{
		"broken": {Type: "local"},
	})

	registry := tool.NewRegistry()
	m.Register(registry)
	assert.Empty(t, registry.IDs())
}
