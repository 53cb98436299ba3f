package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lodestar-ai/lodestar/internal/server"
	"github.com/lodestar-ai/lodestar/internal/snapshot"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
	serveNoCORS   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the headless Lodestar server",
	Long: `Start Lodestar as a headless server exposing the HTTP API.

Clients drive sessions over REST, stream turns as chunked JSON and
subscribe to /event for live updates.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 4096, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false, "Disable CORS headers")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := workingDir(serveDir)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, workDir)
	if err != nil {
		return err
	}
	defer a.close()

	watcher, err := snapshot.NewWatcher(workDir, a.bus)
	if err == nil {
		watcher.Start()
		defer watcher.Stop()
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = servePort
	serverConfig.Hostname = serveHostname
	serverConfig.Directory = workDir
	serverConfig.EnableCORS = !serveNoCORS

	srv := server.New(server.Options{
		Config:    serverConfig,
		AppConfig: a.config,
		Store:     a.store,
		Engine:    a.engine,
		Bus:       a.bus,
		Gate:      a.gate,
		Providers: a.providers,
		Tools:     a.tools,
		Agents:    a.agents,
		MCP:       a.mcp,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	fmt.Printf("lodestar server listening on http://%s:%d\n", serveHostname, servePort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
