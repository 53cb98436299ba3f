// Package main provides the standalone Lodestar server binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lodestar-ai/lodestar/internal/agent"
	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/internal/config"
	"github.com/lodestar-ai/lodestar/internal/engine"
	"github.com/lodestar-ai/lodestar/internal/logging"
	"github.com/lodestar-ai/lodestar/internal/mcp"
	"github.com/lodestar-ai/lodestar/internal/permission"
	"github.com/lodestar-ai/lodestar/internal/provider"
	"github.com/lodestar-ai/lodestar/internal/server"
	"github.com/lodestar-ai/lodestar/internal/snapshot"
	"github.com/lodestar-ai/lodestar/internal/store"
	"github.com/lodestar-ai/lodestar/internal/tool"
)

var (
	port      = flag.Int("port", 4096, "Server port")
	hostname  = flag.String("hostname", "127.0.0.1", "Hostname to listen on")
	directory = flag.String("directory", "", "Working directory")
	version   = flag.Bool("version", false, "Print version and exit")
)

const Version = "0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("lodestar-server %s\n", Version)
		os.Exit(0)
	}

	logging.Init(logging.DefaultConfig())
	log := logging.Component("main")

	workDir := *directory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			log.Fatal().Err(err).Msg("resolve working directory")
		}
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		log.Fatal().Err(err).Msg("create data directories")
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}

	ctx := context.Background()
	b := bus.New()
	st := store.New(paths.StoragePath(), b)

	providers, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		log.Warn().Err(err).Msg("some providers failed to initialize")
	}

	tools := tool.DefaultRegistry(tool.Deps{WorkDir: workDir, Bus: b, Todos: st})

	mcpManager := mcp.NewManager()
	if len(appConfig.MCP) > 0 {
		mcpManager.Connect(ctx, appConfig.MCP)
		mcpManager.Register(tools)
	}
	defer mcpManager.Close()

	gate := permission.NewGate(b)
	agents := agent.FromConfig(appConfig)
	snapshots := snapshot.NewManager(workDir, st)

	eng := engine.New(engine.Options{
		Store:     st,
		Bus:       b,
		Providers: providers,
		Tools:     tools,
		Gate:      gate,
		Snapshots: snapshots,
		Agents:    agents,
		Config:    appConfig,
		WorkDir:   workDir,
	})

	if watcher, err := snapshot.NewWatcher(workDir, b); err == nil {
		watcher.Start()
		defer watcher.Stop()
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = *port
	serverConfig.Hostname = *hostname
	serverConfig.Directory = workDir

	srv := server.New(server.Options{
		Config:    serverConfig,
		AppConfig: appConfig,
		Store:     st,
		Engine:    eng,
		Bus:       b,
		Gate:      gate,
		Providers: providers,
		Tools:     tools,
		Agents:    agents,
		MCP:       mcpManager,
	})

	go func() {
		log.Info().Str("addr", fmt.Sprintf("%s:%d", *hostname, *port)).Msg("server starting")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	b.Close()
}
