package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maxpert/amqp-peer/config"
	"github.com/maxpert/amqp-peer/metrics"
	"github.com/maxpert/amqp-peer/server"
)

var serveFlags struct {
	address     string
	websocket   string
	logLevel    string
	metrics     string
	traceDir    string
	autoRespond bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept connections until interrupted",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.address, "address", "", "TCP listen address")
	f.StringVar(&serveFlags.websocket, "websocket", "", "WebSocket listen address (disabled when empty)")
	f.StringVar(&serveFlags.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&serveFlags.metrics, "metrics-address", "", "serve /metrics and /health on this address")
	f.StringVar(&serveFlags.traceDir, "trace-dir", "", "write a CBOR frame trace per connection to this directory")
	f.BoolVar(&serveFlags.autoRespond, "auto-respond", true, "answer Open, Begin, Attach, Detach, End and Close")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig(cmd *cobra.Command) (*config.AMQPConfig, error) {
	cfg := config.DefaultConfig()
	if err := cfg.Load(cfgFile); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Network.Address = serveFlags.address
	}
	if flags.Changed("websocket") {
		cfg.Network.WebSocketAddress = serveFlags.websocket
	}
	if flags.Changed("log-level") {
		cfg.Server.LogLevel = serveFlags.logLevel
	}
	if flags.Changed("metrics-address") {
		cfg.Server.MetricsAddress = serveFlags.metrics
	}
	if flags.Changed("trace-dir") {
		cfg.Peer.TracePath = serveFlags.traceDir
	}
	if flags.Changed("auto-respond") {
		cfg.Peer.AutoRespond = serveFlags.autoRespond
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := server.NewZapLogger(cfg.Server.LogLevel, cfg.Server.LogFile)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	fmt.Fprintf(cmd.OutOrStdout(), banner, version)

	builder := server.NewServerBuilderWithConfig(cfg).WithLogger(logger)
	registry := prometheus.NewRegistry()
	if cfg.Server.MetricsAddress != "" {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		builder = builder.WithMetrics(registry)
	}

	peer, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := peer.Start(ctx); err != nil {
		return err
	}
	logger.Info("Server ready - press Ctrl+C to stop",
		zap.Stringer("address", peer.Addr()),
		zap.Bool("sasl", cfg.Security.SASLEnabled),
		zap.Bool("auto_respond", cfg.Peer.AutoRespond))

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.MetricsAddress != "" {
		telemetry := metrics.NewServer(cfg.Server.MetricsAddress, registry, peer.Health)
		logger.Info("Telemetry server listening",
			zap.String("metrics", "http://"+telemetry.Address()+"/metrics"),
			zap.String("health", "http://"+telemetry.Address()+"/health"))
		g.Go(telemetry.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return telemetry.Stop(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return peer.Stop(shutdownCtx)
	})

	return g.Wait()
}
