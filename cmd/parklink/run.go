package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/parklink-project/parklink/internal/api"
	"github.com/parklink-project/parklink/internal/cli"
	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/connector"
	"github.com/parklink-project/parklink/internal/db"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/scheduler"
	"github.com/parklink-project/parklink/internal/telemetry"
	"github.com/parklink-project/parklink/internal/util"
)

const shutdownTimeout = 30 * time.Second

func runCmd() *cobra.Command {
	var (
		configDir   string
		interactive bool
		setup       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join the configured server and serve the integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configDir, interactive, setup)
		},
	}

	cmd.Flags().StringVarP(&configDir, "config", "c", config.DefaultConfigDir, "Configuration directory")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", true, "Start the interactive console")
	cmd.Flags().BoolVar(&setup, "setup", false, "Run the setup wizard before starting")

	return cmd
}

func run(configDir string, interactive, setup bool) error {
	fmt.Printf(banner, version)
	fmt.Println()

	// Defaults first; reconfigured once the config is loaded.
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info().
		Str("version", version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting parklink")

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app := cfg.GetApplicationData()
	logCfg := util.LogConfig{
		Level:      app.Logging.Level,
		Directory:  app.Logging.Directory,
		MaxSizeMB:  app.Logging.MaxSizeMB,
		MaxBackups: app.Logging.MaxBackups,
		Console:    app.Logging.Console,
		Version:    version,
	}
	if srv := cfg.GetServer(); srv.Host != "" {
		logCfg.Server = net.JoinHostPort(srv.Host, strconv.Itoa(srv.Port))
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	if setup || cfg.IsFirstRun() {
		log.Info().Msg("launching setup wizard")
		if err := config.RunSetupWizard(cfg, os.Stdin); err != nil {
			return fmt.Errorf("setup wizard failed: %w", err)
		}
		app = cfg.GetApplicationData()
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return errors.New("configuration validation failed, please fix the errors above")
	}

	host := util.GetHostInfo()
	log.Info().
		Str("hostname", host.Hostname).
		Str("os", host.OS).
		Uint64("memory_mb", host.TotalMemory).
		Msg("system information")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventBus := events.NewEventBus()
	defer eventBus.Stop()

	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(context.Context, events.Event) error {
		cancel()
		return nil
	})

	var history *db.HistoryStore
	if app.History.Enabled {
		history, err = db.NewHistoryStore(app.History.Path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open history database, history disabled")
		} else {
			defer history.Close()
			history.Attach(eventBus)
		}
	}

	supervisor := connector.NewSupervisor(cfg, eventBus)

	var webhook *connector.WebhookRelay
	if app.Webhook.Enabled {
		webhook = connector.NewWebhookRelay(app.Webhook, eventBus)
	}

	var mqttHandler *telemetry.MQTTHandler
	if app.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(app.MQTT, eventBus, version)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return supervisor.Run(gctx)
	})

	if app.API.Enabled {
		apiServer := api.NewServer(cfg, eventBus, supervisor, history)
		g.Go(func() error {
			log.Info().Int("port", app.API.Port).Msg("starting REST API server")
			if err := startWithRetry(gctx, "API server", apiServer.Start, 5); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
			return nil
		})
	}

	sched := scheduler.NewScheduler(cfg, eventBus, supervisor, history)
	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})

	if webhook != nil {
		g.Go(func() error {
			return webhook.Run(gctx)
		})
	}

	if mqttHandler != nil {
		g.Go(func() error {
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(gctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
			return nil
		})
	}

	if interactive {
		console := cli.NewCLI(cfg, eventBus, supervisor, history, os.Stdin, os.Stdout)
		// The console goroutine is not part of the group: a blocked stdin
		// read must not hold up shutdown.
		go console.Start(gctx)
	}

	<-gctx.Done()
	log.Info().Msg("initiating graceful shutdown...")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("task failed")
			return err
		}
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn().Dur("timeout", shutdownTimeout).Msg("shutdown timed out, forcing exit")
	}

	log.Info().Msg("parklink stopped")
	return nil
}

// startWithRetry starts a listener, retrying bind failures at a fixed interval.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return nil
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
