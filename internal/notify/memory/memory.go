// Package memory is an in-process notify broker. Used by tests and by the
// single-binary deployment.
package memory

import (
	"context"
	"errors"
	"sync"

	"elsa/internal/notify"
)

var ErrClosed = errors.New("memory broker closed")

type subscriber struct {
	scope notify.Scope
	fn    func(notify.Event)
}

type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
	closed bool
}

func New() *Broker {
	return &Broker{subs: map[int]subscriber{}}
}

func (b *Broker) Subscribe(_ context.Context, scope notify.Scope, fn func(notify.Event)) (notify.Subscription, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = subscriber{scope: scope, fn: fn}

	var once sync.Once
	return notify.SubscriptionFunc(func() error {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
		return nil
	}), nil
}

// Publish delivers e synchronously to every matching subscriber.
func (b *Broker) Publish(_ context.Context, e notify.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	var targets []func(notify.Event)
	for _, s := range b.subs {
		if s.scope.Matches(e) {
			targets = append(targets, s.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(e)
	}
	return nil
}

// Subscribers is the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[int]subscriber{}
	return nil
}
