// Package notifytest provides a notify broker whose subscriptions can be
// made to fail or to drop, for tests of subscription error paths.
package notifytest

import (
	"context"
	"fmt"
	"sync"

	"elsa/internal/notify"
	"elsa/internal/notify/memory"
)

// Notifier is an in-process broker with failure injection. Its
// subscriptions implement notify.Droppable.
type Notifier struct {
	*memory.Broker

	mu       sync.Mutex
	failNext error
	live     map[*Subscription]struct{}
	acquired map[string]int
	released map[string]int
}

func New() *Notifier {
	return &Notifier{
		Broker:   memory.New(),
		live:     map[*Subscription]struct{}{},
		acquired: map[string]int{},
		released: map[string]int{},
	}
}

// FailNextSubscribe makes the next Subscribe return err.
func (n *Notifier) FailNextSubscribe(err error) {
	n.mu.Lock()
	n.failNext = err
	n.mu.Unlock()
}

func (n *Notifier) Subscribe(ctx context.Context, scope notify.Scope, fn func(notify.Event)) (notify.Subscription, error) {
	n.mu.Lock()
	if err := n.failNext; err != nil {
		n.failNext = nil
		n.mu.Unlock()
		return nil, err
	}
	n.mu.Unlock()

	inner, err := n.Broker.Subscribe(ctx, scope, fn)
	if err != nil {
		return nil, err
	}
	s := &Subscription{n: n, owner: scope.Owner, inner: inner, dropped: make(chan struct{})}

	n.mu.Lock()
	n.live[s] = struct{}{}
	n.acquired[scope.Owner]++
	n.mu.Unlock()
	return s, nil
}

// DropAll ends every live subscription the way a lost connection does:
// delivery stops and Dropped is closed, but Unsubscribe was never called.
func (n *Notifier) DropAll(cause error) int {
	n.mu.Lock()
	subs := make([]*Subscription, 0, len(n.live))
	for s := range n.live {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	for _, s := range subs {
		s.drop(cause)
	}
	return len(subs)
}

// Counts returns how many subscriptions were acquired and released by
// Unsubscribe for owner.
func (n *Notifier) Counts(owner string) (acquired, released int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.acquired[owner], n.released[owner]
}

// Subscription is a droppable wrapper around a memory subscription.
type Subscription struct {
	n     *Notifier
	owner string
	inner notify.Subscription

	once    sync.Once
	dropped chan struct{}
	err     error
}

func (s *Subscription) detach() bool {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if _, ok := s.n.live[s]; !ok {
		return false
	}
	delete(s.n.live, s)
	return true
}

func (s *Subscription) drop(cause error) {
	if !s.detach() {
		return
	}
	s.inner.Unsubscribe()
	s.err = fmt.Errorf("%w: %w", notify.ErrSubscriptionLost, cause)
	close(s.dropped)
}

func (s *Subscription) Unsubscribe() error {
	s.once.Do(func() {
		if !s.detach() {
			return
		}
		s.n.mu.Lock()
		s.n.released[s.owner]++
		s.n.mu.Unlock()
		s.inner.Unsubscribe()
	})
	return nil
}

func (s *Subscription) Dropped() <-chan struct{} { return s.dropped }

// Err is set once Dropped is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.dropped:
		return s.err
	default:
		return nil
	}
}
