package dispatch

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// BusPublisher publishes task payloads through a watermill publisher, so the
// pub/sub task kind rides the same broker as lifecycle events.
type BusPublisher struct {
	publisher message.Publisher
}

func NewBusPublisher(publisher message.Publisher) *BusPublisher {
	return &BusPublisher{publisher: publisher}
}

func (p *BusPublisher) PublishTopic(_ context.Context, topic string, metadata map[string]string, body []byte) error {
	msg := message.NewMessage(watermill.NewULID(), body)
	for key, value := range metadata {
		msg.Metadata.Set(key, value)
	}

	return p.publisher.Publish(topic, msg)
}
