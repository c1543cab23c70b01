// Package records exposes per-owner record collections that keep a current
// snapshot and broadcast every freshly loaded snapshot to subscribers.
package records

import (
	"context"
	"fmt"
	"sync"
)

// Loader fetches the complete current snapshot of a collection.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Collection holds the latest snapshot of a record list.
type Collection[T any] struct {
	load Loader[T]

	mu      sync.RWMutex
	current []T
	loaded  bool

	subMu  sync.Mutex
	nextID int
	subs   map[int]func([]T)
	order  []int
}

func NewCollection[T any](load Loader[T]) *Collection[T] {
	return &Collection[T]{load: load, subs: map[int]func([]T){}}
}

// Current returns a copy of the latest snapshot. Before the first load it is empty.
func (c *Collection[T]) Current() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.current...)
}

// Loaded reports whether at least one snapshot has been fetched.
func (c *Collection[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Subscribe registers fn for every future snapshot. The returned function
// removes the subscription; calling it more than once is harmless.
func (c *Collection[T]) Subscribe(fn func([]T)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.order = append(c.order, id)
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			delete(c.subs, id)
			for i, v := range c.order {
				if v == id {
					c.order = append(c.order[:i], c.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Refetch loads a new snapshot, stores it and hands it to every subscriber
// in subscription order. Concurrent refetches are allowed; each one
// broadcasts the snapshot it loaded.
func (c *Collection[T]) Refetch(ctx context.Context) error {
	items, err := c.load(ctx)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}

	c.mu.Lock()
	c.current = append([]T(nil), items...)
	c.loaded = true
	c.mu.Unlock()

	c.subMu.Lock()
	fns := make([]func([]T), 0, len(c.order))
	for _, id := range c.order {
		fns = append(fns, c.subs[id])
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(append([]T(nil), items...))
	}
	return nil
}

// Subscribers reports how many subscriptions are live.
func (c *Collection[T]) Subscribers() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs)
}
