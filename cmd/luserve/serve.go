package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/luserve/luserve/internal/bus"
	"github.com/luserve/luserve/internal/config"
	"github.com/luserve/luserve/internal/grpcserver"
	"github.com/luserve/luserve/internal/metrics"
	"github.com/luserve/luserve/internal/pkg/logger"
	"github.com/luserve/luserve/internal/recognizer"
	"github.com/luserve/luserve/internal/server"
	"github.com/luserve/luserve/internal/watch"
)

// shutdownTimeout bounds the drain of in-flight requests.
const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the recognition server",
		Long: `Load the category and entity models and serve them:
- HTTP: GET /recognize/<query> returns {"cats": ..., "ents": [...]}
- gRPC: luserve.v1.Recognizer (optional, --grpc)

Recognition, model loads, and conversions are published on the event bus
and feed the Prometheus metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := logger.NewFile(cfg.Log.File, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer log.Close()

			return runServer(cmd.Context(), cfg, log)
		},
	}

	cmd.Flags().IntP("port", "p", 5000, "HTTP server port")
	cmd.Flags().String("host", "127.0.0.1", "HTTP server host")
	cmd.Flags().Bool("grpc", false, "enable the gRPC server")
	cmd.Flags().Int("grpc-port", 50051, "gRPC server port")
	cmd.Flags().String("unix-socket", "", "gRPC Unix socket path")
	cmd.Flags().String("category-model", "", "category model directory")
	cmd.Flags().String("entity-model", "", "entity model directory (empty disables it)")
	cmd.Flags().String("cache", "memory", "result cache type (memory, redis, none)")
	cmd.Flags().String("bus", "memory", "event bus type (memory, kafka)")
	cmd.Flags().Int("rate-limit", 0, "requests per second per client (0 = disabled)")
	cmd.Flags().Bool("watch", false, "reload models when their directories change")

	return cmd
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	overrideString(cmd, "host", &cfg.Host)
	overrideInt(cmd, "port", &cfg.Port)
	if cmd.Flags().Changed("grpc") {
		cfg.GRPC.Enabled, _ = cmd.Flags().GetBool("grpc")
	}
	overrideInt(cmd, "grpc-port", &cfg.GRPC.Port)
	overrideString(cmd, "unix-socket", &cfg.GRPC.UnixSocket)
	overrideString(cmd, "category-model", &cfg.Models.CategoryDir)
	overrideString(cmd, "entity-model", &cfg.Models.EntityDir)
	overrideString(cmd, "cache", &cfg.Cache.Type)
	overrideString(cmd, "bus", &cfg.Bus.Type)
	overrideInt(cmd, "rate-limit", &cfg.Security.RateLimit)
	if cmd.Flags().Changed("watch") {
		cfg.Models.Watch, _ = cmd.Flags().GetBool("watch")
	}
}

func runServer(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("Starting luserve",
		"version", version,
		"host", cfg.Host,
		"port", cfg.Port,
		"category_model", cfg.Models.CategoryDir,
		"entity_model", cfg.Models.EntityDir,
	)

	metricsSvc := metrics.New()
	defer metricsSvc.Close()

	innerBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return fmt.Errorf("creating event bus: %w", err)
	}
	eventBus := bus.NewInstrumentedBus(innerBus, metricsSvc)
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.Warn("Event bus close error", "error", err)
		}
	}()
	log.Info("Event bus initialized", "type", cfg.Bus.Type, "event_log", cfg.Bus.EventLog)

	if err := metrics.NewEventSubscriber(metricsSvc, eventBus).SubscribeToEvents(ctx); err != nil {
		return fmt.Errorf("subscribing metrics: %w", err)
	}

	cache, err := recognizer.NewCache(cfg.Cache)
	if err != nil {
		log.Warn("Result cache unavailable, falling back to memory", "type", cfg.Cache.Type, "error", err)
		cache = recognizer.NewMemoryCache(cfg.Cache.Size, time.Duration(cfg.Cache.TTL)*time.Second)
	}

	svc := recognizer.NewService(cfg, log, recognizer.WithBus(eventBus), recognizer.WithCache(cache))
	defer svc.Close()

	// The server stays up without models so /readyz can report it and a
	// reload can recover.
	if err := svc.LoadModels(ctx); err != nil {
		log.Error("Failed to load models", "error", err)
	}

	var grpcSrv *grpcserver.Server
	if cfg.GRPC.Enabled {
		grpcSrv = grpcserver.New(grpcserver.Config{
			TCPAddr:        cfg.GRPCAddress(),
			UnixSocketPath: cfg.GRPC.UnixSocket,
		}, svc, log)
		if err := grpcSrv.Start(); err != nil {
			return err
		}
		defer grpcSrv.Stop()

		// Reloads through HTTP change gRPC health as well.
		if err := eventBus.Subscribe(ctx, bus.TopicModelsLoaded, func(context.Context, bus.Event) error {
			grpcSrv.UpdateHealth()
			return nil
		}); err != nil {
			return fmt.Errorf("subscribing health updates: %w", err)
		}
	}

	if cfg.Models.Watch {
		w, err := watch.New(watch.Config{
			Dirs:   []string{cfg.Models.CategoryDir, cfg.Models.EntityDir},
			Reload: svc.Reload,
		}, log)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Start(ctx); err != nil {
				log.Error("Model watcher stopped", "error", err)
			}
		}()
		defer w.Stop()
	}

	opts := []server.Option{server.WithBuildInfo(server.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(metricsSvc))
	}
	httpSrv := server.New(cfg, svc, log, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error", "error", err)
	}
	log.Info("Server stopped")
	return nil
}
