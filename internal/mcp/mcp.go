// Package mcp connects configured Model Context Protocol servers and exposes
// their tools to the session engine. Every remote tool is registered under
// the name mcp_<server>_<tool> so the model can tell external tools apart
// from the built-in set.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/lodestar-ai/lodestar/internal/logging"
	"github.com/lodestar-ai/lodestar/internal/tool"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// defaultConnectTimeout bounds connection and tool discovery per server.
const defaultConnectTimeout = 15 * time.Second

// Status is a server's connection state.
type Status string

const (
	StatusConnected Status = "connected"
	StatusDisabled  Status = "disabled"
	StatusFailed    Status = "failed"
)

// ServerStatus describes one configured server for the status API.
type ServerStatus struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	ToolCount int    `json:"toolCount"`
	Error     string `json:"error,omitempty"`
}

// Manager owns the connections to the configured MCP servers.
type Manager struct {
	client *sdkmcp.Client
	log    zerolog.Logger

	mu      sync.RWMutex
	servers map[string]*server
}

// server is one configured connection and its discovered tools.
type server struct {
	name    string
	config  types.MCPConfig
	session *sdkmcp.ClientSession
	tools   []*sdkmcp.Tool
	status  Status
	err     string
}

// NewManager creates a manager with no connections.
func NewManager() *Manager {
	return &Manager{
		client: sdkmcp.NewClient(&sdkmcp.Implementation{
			Name:    "lodestar",
			Version: "1.0.0",
		}, nil),
		log:     logging.Component("mcp"),
		servers: make(map[string]*server),
	}
}

// Connect dials every enabled server in configs and records per-server
// failures without failing the whole startup. Call Register afterwards to
// expose the discovered tools.
func (m *Manager) Connect(ctx context.Context, configs map[string]types.MCPConfig) {
	for name, cfg := range configs {
		m.mu.Lock()
		if _, exists := m.servers[name]; exists {
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		srv := &server{name: name, config: cfg}
		if cfg.Enabled != nil && !*cfg.Enabled {
			srv.status = StatusDisabled
		} else if err := m.connect(ctx, srv); err != nil {
			srv.status = StatusFailed
			srv.err = err.Error()
			m.log.Warn().Err(err).Str("server", name).Msg("mcp server connection failed")
		} else {
			srv.status = StatusConnected
			m.log.Info().Str("server", name).Int("tools", len(srv.tools)).Msg("mcp server connected")
		}

		m.mu.Lock()
		m.servers[name] = srv
		m.mu.Unlock()
	}
}

// connect establishes the session over the configured transport and lists
// the server's tools.
func (m *Manager) connect(ctx context.Context, srv *server) error {
	timeout := defaultConnectTimeout
	if srv.config.Timeout > 0 {
		timeout = time.Duration(srv.config.Timeout) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch srv.config.Type {
	case "remote":
		return m.connectRemote(ctx, srv)
	case "local", "", "stdio":
		return m.connectLocal(ctx, srv)
	default:
		return fmt.Errorf("unknown mcp transport type %q", srv.config.Type)
	}
}

// connectLocal spawns the configured command and talks to it over stdio.
func (m *Manager) connectLocal(ctx context.Context, srv *server) error {
	if len(srv.config.Command) == 0 {
		return fmt.Errorf("mcp server %s: empty command", srv.name)
	}

	cmd := exec.Command(srv.config.Command[0], srv.config.Command[1:]...)
	cmd.Env = os.Environ()
	for k, v := range srv.config.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	return m.establish(ctx, srv, &sdkmcp.CommandTransport{Command: cmd})
}

// connectRemote tries the streamable HTTP transport first and falls back to
// SSE for older servers.
func (m *Manager) connectRemote(ctx context.Context, srv *server) error {
	if srv.config.URL == "" {
		return fmt.Errorf("mcp server %s: empty url", srv.name)
	}
	httpClient := clientWithHeaders(srv.config.Headers)

	streamErr := m.establish(ctx, srv, &sdkmcp.StreamableClientTransport{
		Endpoint:   srv.config.URL,
		HTTPClient: httpClient,
	})
	if streamErr == nil {
		return nil
	}

	sseErr := m.establish(ctx, srv, &sdkmcp.SSEClientTransport{
		Endpoint:   srv.config.URL,
		HTTPClient: httpClient,
	})
	if sseErr == nil {
		return nil
	}
	return fmt.Errorf("streamable transport: %v; sse transport: %w", streamErr, sseErr)
}

// establish connects a transport and discovers the server's tools.
func (m *Manager) establish(ctx context.Context, srv *server, transport sdkmcp.Transport) error {
	session, err := m.client.Connect(ctx, transport, nil)
	if err != nil {
		return err
	}

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		session.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	srv.session = session
	srv.tools = result.Tools
	return nil
}

// Register adds every connected server's tools to the registry. Tools whose
// schema the registry rejects are skipped with a warning.
func (m *Manager) Register(registry *tool.Registry) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, srv := range m.servers {
		if srv.status != StatusConnected {
			continue
		}
		for _, t := range srv.tools {
			wrapped := wrapTool(srv, t)
			if err := registry.Register(wrapped); err != nil {
				m.log.Warn().Err(err).
					Str("server", srv.name).
					Str("tool", t.Name).
					Msg("mcp tool registration failed")
			}
		}
	}
}

// Status reports every configured server.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServerStatus, 0, len(m.servers))
	for name, srv := range m.servers {
		out = append(out, ServerStatus{
			Name:      name,
			Status:    srv.status,
			ToolCount: len(srv.tools),
			Error:     srv.err,
		})
	}
	return out
}

// Close disconnects every server.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, srv := range m.servers {
		if srv.session != nil {
			srv.session.Close()
		}
	}
	m.servers = make(map[string]*server)
}

// clientWithHeaders returns an http client that adds the configured headers
// to every request. Timeouts come from per-request contexts.
func clientWithHeaders(headers map[string]string) *http.Client {
	client := &http.Client{}
	if len(headers) > 0 {
		client.Transport = &headerRoundTripper{headers: headers, next: http.DefaultTransport}
	}
	return client
}

type headerRoundTripper struct {
	headers map[string]string
	next    http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	for k, v := range h.headers {
		cloned.Header.Set(k, v)
	}
	return h.next.RoundTrip(cloned)
}

// sanitizeName squashes anything outside [a-zA-Z0-9] to underscore so tool
// names stay valid identifiers for every provider.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
