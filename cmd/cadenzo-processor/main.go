// Package main provides the Cadenzo trigger processor: the background service
// that advances instances along automatic and scheduled transitions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/cadenzo/cadenzo/pkg/cmd"
	"github.com/cadenzo/cadenzo/pkg/log"
	"github.com/cadenzo/cadenzo/pkg/otelhelper"
	"github.com/cadenzo/cadenzo/pkg/processor"
	"github.com/cadenzo/cadenzo/pkg/services"
	"github.com/cadenzo/cadenzo/pkg/tasks"
)

func main() {
	logger := log.WithModule("processor")

	command := &cli.Command{
		Name:                  "cadenzo-processor",
		Usage:                 "Run the background trigger processor",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (memory:// or postgres://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for distributed instance locking",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "endpoints",
				Usage:   "JSON object mapping endpoint names to base URLs for httpEndpoint tasks",
				Sources: cli.EnvVars("ENDPOINTS"),
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Delay between trigger evaluation passes",
				Value:   processor.DefaultInterval,
				Sources: cli.EnvVars("PROCESSOR_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing Cadenzo trigger processor")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus, publisher := cmd.NewEventBus(command.String("event-bus"), "cadenzo-processor", logger)

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			connectors := cmd.NewConnectors(command.String("endpoints"), publisher)
			locks := cmd.NewInstanceLock(command.String("redis-url"), logger)

			engineOpts := []tasks.EngineOption{tasks.WithEvents(bus)}
			serviceOpts := []services.InstanceServiceOption{
				services.WithLock(locks),
				services.WithEvents(bus),
			}

			if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
				tracer, err := otelhelper.NewTracer(ctx, "cadenzo-processor")
				if err != nil {
					return fmt.Errorf("failed to initialize tracing: %w", err)
				}

				engineOpts = append(engineOpts, tasks.WithTracer(tracer))
				serviceOpts = append(serviceOpts, services.WithTracer(tracer))
			}

			engine := tasks.NewEngine(persistence, connectors, logger, engineOpts...)

			instanceService := services.NewInstanceService(persistence, engine, logger, serviceOpts...)

			triggerProcessor := processor.New(persistence, instanceService, logger,
				processor.WithInterval(command.Duration("interval")))

			err := triggerProcessor.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			logger.Info("Trigger processor stopped")

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
