package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/crucible/internal/printer"
	"github.com/dyluth/crucible/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr   string
	serveAPIKey string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a workspace over HTTP",
	Long: `Start an HTTP JSON API over one workspace session.

Endpoints:
  GET  /healthz                   Store connectivity
  GET  /library                   Known elements
  POST /combine                   {"a": "Water", "b": "Fire"}
  GET  /workspace                 Instances, drag state, undo/redo availability
  POST /workspace/spawn           {"name": "Water"}
  POST /workspace/drag            {"id": "...", "x": 10, "y": 20}
  POST /workspace/drop            {"id": "...", "x": 10, "y": 20}
  POST /workspace/clear|undo|redo
  GET  /snapshots                 ?since=&until=&name=
  POST /snapshots                 {"name": "volcano"}
  GET  /snapshots/{id}
  POST /snapshots/{id}/load
  DELETE /snapshots/{id}

A drop or combine that needs a credential and has none answers 424.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "Credential for this server process only")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveAPIKey != "" {
		a.override.Set(serveAPIKey)
	}

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	cfg := server.Config{
		Addr:      addr,
		Session:   a.newSession(),
		Snapshots: a.snapshots,
		Namespace: a.namespace(),
	}
	if a.redis != nil {
		cfg.Pinger = a.redis
	}

	srv := server.New(cfg)
	if err := srv.Start(); err != nil {
		return printer.Error(
			"failed to start server",
			err.Error(),
			[]string{"Choose another address:\n  crucible serve --addr 127.0.0.1:8081"},
		)
	}

	printer.Success("Serving namespace '%s' on http://%s\n", a.namespace(), srv.Addr())
	if !a.engine.HasCredential(ctx) {
		printer.Warning("No credential configured: only recipes and cached pairs will combine.\n")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	printer.Info("\nShutting down...\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
