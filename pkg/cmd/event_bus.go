package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/casework/pkg/channels/gochannel"
	"github.com/dukex/casework/pkg/channels/kafka"
	"github.com/dukex/casework/pkg/channels/redis"
	"github.com/dukex/casework/pkg/eventbus"
)

// EventBusConfig selects and configures the event bus channel.
type EventBusConfig struct {
	Provider     string
	KafkaBrokers string
	RedisURL     string
	ServiceName  string
}

// NewEventBus creates the case lifecycle event bus over the configured channel.
func NewEventBus(ctx context.Context, logger *slog.Logger, config EventBusConfig) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch config.Provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(config.KafkaBrokers), config.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	case "redis":
		pub, sub, err := redis.CreateChannel(ctx, wmLogger, config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", config.Provider)
	}
}
