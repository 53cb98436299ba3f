package server

import (
	"net/http"
	"runtime"

	"github.com/lodestar-ai/lodestar/pkg/types"
)

// redactedConfig is the config view returned over the API: provider API keys
// are stripped, everything else passes through.
func redactedConfig(cfg *types.Config) *types.Config {
	if cfg == nil {
		return &types.Config{}
	}
	out := *cfg
	if len(cfg.Provider) > 0 {
		out.Provider = make(map[string]types.ProviderConfig, len(cfg.Provider))
		for id, pc := range cfg.Provider {
			pc.APIKey = ""
			out.Provider[id] = pc
		}
	}
	return &out
}

// getConfig handles GET /config.
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, redactedConfig(s.appConfig))
}

// ProviderInfo describes one configured backend and its models.
type ProviderInfo struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Models []types.Model `json:"models"`
}

// listProviders handles GET /config/providers.
func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	out := []ProviderInfo{}
	for _, p := range s.providers.List() {
		out = append(out, ProviderInfo{
			ID:     p.ID(),
			Name:   p.Name(),
			Models: p.Models(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// AppInfo is the GET /app payload.
type AppInfo struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Directory string   `json:"directory"`
	Platform  string   `json:"platform"`
	Tools     []string `json:"tools"`
	Agents    []string `json:"agents"`
}

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

// getApp handles GET /app.
func (s *Server) getApp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AppInfo{
		Name:      "lodestar",
		Version:   Version,
		Directory: s.config.Directory,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Tools:     s.tools.IDs(),
		Agents:    s.agents.Names(),
	})
}

// listAgents handles GET /agent.
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agents.List())
}

// mcpStatus handles GET /mcp.
func (s *Server) mcpStatus(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.mcp.Status())
}
