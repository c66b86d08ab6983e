package ports

import "context"

// Subscription delivers messages published on one channel until closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// EventBroker fans messages out to every subscriber of a channel. Publish
// must not wait for subscribers to consume.
type EventBroker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}
