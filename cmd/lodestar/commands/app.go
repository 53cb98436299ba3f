package commands

import (
	"context"

	"github.com/lodestar-ai/lodestar/internal/agent"
	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/internal/config"
	"github.com/lodestar-ai/lodestar/internal/engine"
	"github.com/lodestar-ai/lodestar/internal/logging"
	"github.com/lodestar-ai/lodestar/internal/mcp"
	"github.com/lodestar-ai/lodestar/internal/permission"
	"github.com/lodestar-ai/lodestar/internal/provider"
	"github.com/lodestar-ai/lodestar/internal/snapshot"
	"github.com/lodestar-ai/lodestar/internal/store"
	"github.com/lodestar-ai/lodestar/internal/tool"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// app bundles the wired collaborators behind every command.
type app struct {
	workDir   string
	config    *types.Config
	bus       *bus.Bus
	store     *store.Store
	providers *provider.Registry
	tools     *tool.Registry
	gate      *permission.Gate
	agents    *agent.Registry
	snapshots *snapshot.Manager
	engine    *engine.Engine
	mcp       *mcp.Manager
}

// buildApp loads configuration and wires the engine for the given directory.
// MCP servers declared in the config are connected; failures there degrade to
// a warning so a broken server does not take the whole CLI down.
func buildApp(ctx context.Context, workDir string) (*app, error) {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}

	b := bus.New()
	st := store.New(paths.StoragePath(), b)

	providers, err := provider.InitializeProviders(ctx, cfg)
	if err != nil {
		log := logging.Component("cli")
		log.Warn().Err(err).Msg("some providers failed to initialize")
	}

	tools := tool.DefaultRegistry(tool.Deps{
		WorkDir: workDir,
		Bus:     b,
		Todos:   st,
	})

	mcpManager := mcp.NewManager()
	if len(cfg.MCP) > 0 {
		mcpManager.Connect(ctx, cfg.MCP)
		mcpManager.Register(tools)
	}

	gate := permission.NewGate(b)
	agents := agent.FromConfig(cfg)
	snapshots := snapshot.NewManager(workDir, st)

	eng := engine.New(engine.Options{
		Store:     st,
		Bus:       b,
		Providers: providers,
		Tools:     tools,
		Gate:      gate,
		Snapshots: snapshots,
		Agents:    agents,
		Config:    cfg,
		WorkDir:   workDir,
	})

	return &app{
		workDir:   workDir,
		config:    cfg,
		bus:       b,
		store:     st,
		providers: providers,
		tools:     tools,
		gate:      gate,
		agents:    agents,
		snapshots: snapshots,
		engine:    eng,
		mcp:       mcpManager,
	}, nil
}

// close releases the app's long-lived resources.
func (a *app) close() {
	if a.mcp != nil {
		a.mcp.Close()
	}
	if a.bus != nil {
		a.bus.Close()
	}
}
