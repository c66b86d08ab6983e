package memory

import (
	"context"
	"errors"
	"sync"

	"videostream/internal/domain/ports"
)

const subscriberBuffer = 64

var ErrClosed = errors.New("broker closed")

// Broker is an in-process fan-out used when no Redis is configured. Slow
// subscribers lose messages instead of blocking publishers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*subscription]struct{})}
}

func (b *Broker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber on channel. The subscription is closed
// when ctx is done or Close is called.
func (b *Broker) Subscribe(ctx context.Context, channel string) (ports.Subscription, error) {
	sub := &subscription{
		broker:  b,
		channel: channel,
		ch:      make(chan []byte, subscriberBuffer),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	set, ok := b.subs[channel]
	if !ok {
		set = make(map[*subscription]struct{})
		b.subs[channel] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Subscribers reports the number of live subscriptions on channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*subscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		_ = sub.Close()
	}
	return nil
}

func (b *Broker) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sub.channel]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.channel)
	}
}

type subscription struct {
	broker  *Broker
	channel string
	ch      chan []byte
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) Messages() <-chan []byte {
	return s.ch
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
		// Publish cannot be sending on ch once remove has returned.
		close(s.ch)
	})
	return nil
}
