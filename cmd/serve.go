package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/michrafnabil/facegate/internal/config"
	"github.com/michrafnabil/facegate/internal/store"
	"github.com/michrafnabil/facegate/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the recognition pipeline over HTTP",
	Long: `Start an HTTP server exposing the recognition pipeline:

  POST /api/recognize  multipart image upload, returns per-face results
  GET  /api/whitelist  enrolled persons and reference counts
  GET  /healthz        liveness check

The whitelist is loaded once at startup.

Examples:
  facegate serve
  facegate serve --env production`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("env", "development", "Environment (development or production)")
}

func runServe(cmd *cobra.Command, args []string) error {
	env := mustGetString(cmd, "env")

	ctx := context.Background()
	cfg := config.Load()
	logger := web.NewLogger(env)

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	wl, err := st.LoadWhitelist(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotBuilt) {
			return errors.New("whitelist not built yet, run \"facegate build\" first")
		}
		return err
	}
	logger.Info("whitelist loaded", "persons", len(wl.Prototypes))

	server := web.NewServer(&cfg.Server, logger, newPipeline(cfg, wl.Prototypes), wl)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("received signal", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
