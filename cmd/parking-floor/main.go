package main

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

	"parking-floor/internal/config"
	"parking-floor/internal/logging"
	"parking-floor/internal/metrics"
	"parking-floor/internal/parking"
	"parking-floor/internal/server"
)

var (
	cfgPath string
	mode    string
	port    string
)

var rootCmd = &cobra.Command{
	Use:           "parking-floor",
	Short:         "Single floor parking allocator with a command shell and an HTTP API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	rootCmd.Flags().StringVar(&mode, "mode", "", "Mode to run: cli, server, or both")
	rootCmd.Flags().StringVar(&port, "port", "", "Port for HTTP server")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg       *config.Config
	telemetry *parking.TelemetryProvider
	prom      *metrics.PromSink
	desks     *parking.DeskHolder
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if port != "" {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(cfg.IsDevelopment(), cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.shutdownTelemetry()

	switch cfg.Mode {
	case "cli":
		a.runCLI(ctx)
	case "server":
		a.runServer(ctx)
	case "both":
		a.runBoth(ctx, cancel)
	}
	return nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	var telemetry *parking.TelemetryProvider
	if cfg.Telemetry.Enabled {
		tp, err := parking.NewTelemetryProvider(ctx, parking.TelemetryConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.Endpoint,
			Environment: cfg.Environment,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize telemetry: %w", err)
		}
		telemetry = tp
	} else {
		telemetry = parking.NewLocalTelemetryProvider(cfg.Telemetry.ServiceName)
	}

	prom, err := metrics.NewPromSink()
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a := &app{cfg: cfg, telemetry: telemetry, prom: prom, desks: parking.NewDeskHolder(nil)}

	if cfg.Floor.Spots > 0 {
		floor, err := parking.NewInstrumentedFloor(cfg.Floor.Spots, telemetry, prom)
		if err != nil {
			return nil, err
		}
		desk, err := parking.NewDesk(floor, cfg.Floor.FeePerSpot, telemetry, prom)
		if err != nil {
			return nil, err
		}
		a.desks.Replace(desk)
		logging.Info(ctx).Int("spots", cfg.Floor.Spots).Msg("parking floor created from config")
	}

	return a, nil
}

func (a *app) newShell() *parking.Shell {
	return parking.NewShell(os.Stdin, os.Stdout, a.telemetry, a.prom, a.desks, a.cfg.Floor.FeePerSpot)
}

// newServer shares a.desks with the shell, so in "both" mode a floor created
// on either side is the one the other side serves.
func (a *app) newServer() *server.Server {
	handler := server.NewHandler(a.cfg.Telemetry.ServiceName, a.telemetry, a.prom, a.desks, a.cfg.Floor.FeePerSpot)
	return server.NewServer(a.cfg.Server.Port, handler, nil)
}

func (a *app) runCLI(ctx context.Context) {
	a.newShell().Run(ctx)
}

func (a *app) runServer(ctx context.Context) {
	srv := a.newServer()

	go func() {
		<-ctx.Done()
		logging.Info(context.Background()).Msg("received shutdown signal")
		shutdownServer(srv)
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error(ctx).Err(err).Msg("server error")
	}
}

func (a *app) runBoth(ctx context.Context, cancel context.CancelFunc) {
	srv := a.newServer()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start()
	}()

	cliDone := make(chan struct{})
	go func() {
		a.newShell().Run(ctx)
		close(cliDone)
	}()

	select {
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx).Err(err).Msg("server error")
		}
	case <-cliDone:
		logging.Info(ctx).Msg("CLI exited")
	case <-ctx.Done():
		logging.Info(context.Background()).Msg("context cancelled")
	}

	cancel()
	shutdownServer(srv)
}

func shutdownServer(srv *server.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx).Err(err).Msg("server shutdown error")
	}
}

func (a *app) shutdownTelemetry() {
	logging.Info(context.Background()).Msg("shutting down telemetry")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx).Err(err).Msg("error shutting down telemetry")
	}
}
