package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/cadenzo/cadenzo/pkg/cmd"
	"github.com/cadenzo/cadenzo/pkg/log"
	"github.com/cadenzo/cadenzo/pkg/otelhelper"
	"github.com/cadenzo/cadenzo/pkg/services"
	"github.com/cadenzo/cadenzo/pkg/tasks"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "cadenzo-api",
		Usage:                 "Serve the workflow definition and instance API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
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
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Cadenzo API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus, publisher := cmd.NewEventBus(command.String("event-bus"), "cadenzo-api", logger)

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
				tracer, err := otelhelper.NewTracer(ctx, "cadenzo-api")
				if err != nil {
					return fmt.Errorf("failed to initialize tracing: %w", err)
				}

				engineOpts = append(engineOpts, tasks.WithTracer(tracer))
				serviceOpts = append(serviceOpts, services.WithTracer(tracer))
			}

			engine := tasks.NewEngine(persistence, connectors, logger, engineOpts...)

			instanceService := services.NewInstanceService(persistence, engine, logger, serviceOpts...)

			definitionService := services.NewDefinitionService(persistence, logger)
			functionService := services.NewFunctionService(persistence, engine, logger)

			api := NewAPI(logger, instanceService, definitionService, functionService)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
