package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/casework/pkg/cmd"
	"github.com/dukex/casework/pkg/eventbus"
	"github.com/dukex/casework/pkg/events"
	"github.com/dukex/casework/pkg/otelhelper"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

func RunAPICommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start api",
		Flags: append(persistenceFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka, redis)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL",
				Value:   "redis://localhost:6379/0",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			logger, persistence, err := openPersistence(ctx, command, "api")
			if err != nil {
				return err
			}
			defer closePersistence(ctx, logger, persistence)

			logger.InfoContext(ctx, "Initializing Casework API")

			var tracer trace.Tracer

			if command.Bool("tracing") {
				var shutdown func(context.Context) error

				tracer, shutdown, err = otelhelper.NewTracer(ctx, "casework-api")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					err := shutdown(context.WithoutCancel(ctx))
					if err != nil {
						logger.Error("Failed to shutdown tracer provider", "error", err)
					}
				}()
			}

			eventBus, err := cmd.NewEventBus(ctx, logger, cmd.EventBusConfig{
				Provider:     command.String("event-bus"),
				KafkaBrokers: command.String("kafka-brokers"),
				RedisURL:     command.String("redis-url"),
				ServiceName:  "casework-api",
			})
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			err = logEvents(ctx, logger, eventBus)
			if err != nil {
				return err
			}

			api := NewAPI(logger, persistence, eventBus, tracer)

			err = api.Start(ctx, command.Int("port"))
			if err != nil {
				return fmt.Errorf("failed to start API: %w", err)
			}

			return nil
		},
	}
}

var lifecycleEvents = []events.EventType{
	events.CaseCreatedEvent,
	events.CaseCompletedEvent,
	events.CaseCanceledEvent,
	events.WorkItemCreatedEvent,
	events.WorkItemCompletedEvent,
	events.WorkItemSkippedEvent,
	events.WorkItemCanceledEvent,
	events.WorkItemSavedEvent,
}

// logEvents traces every case lifecycle event at debug level.
func logEvents(ctx context.Context, logger *slog.Logger, bus eventbus.EventBus) error {
	for _, eventType := range lifecycleEvents {
		err := bus.Handle(eventType, func(ctx context.Context, event events.Event) error {
			logger.DebugContext(ctx, "Case event", "event_type", event.GetType(), "key", event.Key())

			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to handle %s: %w", eventType, err)
		}
	}

	err := bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to case events: %w", err)
	}

	return nil
}
