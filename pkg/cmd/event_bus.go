// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/cadenzo/cadenzo/pkg/channels/gochannel"
	"github.com/cadenzo/cadenzo/pkg/channels/kafka"
	"github.com/cadenzo/cadenzo/pkg/eventbus"
)

// NewEventBus creates an event bus based on the provider name. The raw
// publisher is returned alongside so pubsub tasks can share the same broker
// connection.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, message.Publisher) {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub), pub
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create in-process pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub), pub
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
