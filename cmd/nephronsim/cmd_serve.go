package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/talgya/nephron-sim/internal/api"
	"github.com/talgya/nephron-sim/internal/metrics"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the run API under /api/v1 and Prometheus metrics under /metrics.
POST and DELETE require NEPHRON_ADMIN_KEY as a bearer token.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if servePort > 0 {
		appCfg.Port = servePort
	}
	base, err := appCfg.ControllerConfig()
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", appCfg.DBPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := &api.Server{
		DB:          db,
		Metrics:     metrics.New(reg),
		Base:        base,
		Port:        appCfg.Port,
		AdminKey:    appCfg.AdminKey,
		MaxDays:     appCfg.MaxDays,
		CORSOrigins: appCfg.CORSOrigins,
		RateLimit:   appCfg.RateLimit,
		RateWindow:  appCfg.RateWindow,
	}
	srv.Start()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
