package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/odts/internal/server"
	"github.com/cwbudde/odts/internal/store"
)

var noPersist bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP run server",
	Long: `Starts an HTTP server that accepts runs over a JSON API:

  POST /api/v1/runs              submit a run
  GET  /api/v1/runs              list runs
  GET  /api/v1/runs/{id}         run status and summary
  GET  /api/v1/runs/{id}/trace   iteration snapshots
  GET  /api/v1/runs/{id}/stream  server-sent events, one per iteration

Runs are stored under <data-dir>/runs/ unless --no-persist is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "localhost:8080", "Listen address")
	serveCmd.Flags().String("data-dir", "./data", "Base directory for run audit data")
	serveCmd.Flags().BoolVar(&noPersist, "no-persist", false, "Keep runs in memory only")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var runs *store.FSStore
	if !noPersist {
		var err error
		runs, err = store.NewFSStore(settings.Output.DataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
	}

	srv := server.NewServer(settings.Server.Addr, runs)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
