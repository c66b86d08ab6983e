package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"videostream/internal/domain/ports"
)

const (
	defaultPrefix    = "videostream:"
	subscriberBuffer = 64
)

// Broker publishes progress and watch-state events over Redis pub/sub so
// that worker processes and API replicas share the same channels.
type Broker struct {
	client *redis.Client
	prefix string
}

func NewBroker(client *redis.Client, prefix string) *Broker {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Broker{client: client, prefix: prefix}
}

func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, b.prefix+channel, payload).Err()
}

// Subscribe waits for Redis to confirm the subscription before returning, so
// a message published right after Subscribe is not missed.
func (b *Broker) Subscribe(ctx context.Context, channel string) (ports.Subscription, error) {
	ps := b.client.Subscribe(ctx, b.prefix+channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &subscription{
		ps:   ps,
		ch:   make(chan []byte, subscriberBuffer),
		done: make(chan struct{}),
	}
	go sub.pump(ctx)
	return sub, nil
}

func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

type subscription struct {
	ps   *redis.PubSub
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func (s *subscription) pump(ctx context.Context) {
	defer close(s.ch)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.ch <- []byte(msg.Payload):
			default:
			}
		}
	}
}

func (s *subscription) Messages() <-chan []byte {
	return s.ch
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
