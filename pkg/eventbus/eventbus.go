// Package eventbus publishes workflow lifecycle notifications so external
// consumers can react to instances starting, moving, and completing without
// polling the API.
package eventbus

import (
	"context"
)

type Event interface {
	GetType() EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
