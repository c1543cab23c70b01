package cache

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLRUCache_SizeEviction(t *testing.T) {
	var evicted []string
	c := NewLRUCache(2, time.Hour, WithEvictHook(func(key string, _ int) { evicted = append(evicted, key) }))

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var evicted []string
	c := NewLRUCache(10, time.Minute,
		WithClock[int](clock.Now),
		WithEvictHook(func(key string, _ int) { evicted = append(evicted, key) }))

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(2 * time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Error("expired entry returned")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if len(evicted) != 2 {
		t.Errorf("evicted = %v, want both keys", evicted)
	}
}

func TestLRUCache_SlidingTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache(10, time.Minute, WithClock[string](clock.Now), WithSlidingTTL[string]())

	c.Set("s", "session")
	for i := 0; i < 3; i++ {
		clock.Advance(40 * time.Second)
		if _, ok := c.Get("s"); !ok {
			t.Fatalf("sliding entry expired after access %d", i)
		}
	}
	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("s"); ok {
		t.Error("idle entry should expire")
	}
}

func TestLRUCache_ReplaceAndDelete(t *testing.T) {
	var evicted []int
	c := NewLRUCache(10, time.Hour, WithEvictHook(func(_ string, v int) { evicted = append(evicted, v) }))

	c.Set("a", 1)
	c.Set("a", 2)
	if len(evicted) != 1 || evicted[0] != 1 {
		t.Errorf("replaced value not handed to hook: %v", evicted)
	}

	v, ok := c.Delete("a")
	if !ok || v != 2 {
		t.Errorf("Delete() = %v, %v", v, ok)
	}
	if len(evicted) != 1 {
		t.Errorf("Delete must not call the hook")
	}
}

func TestLRUCache_GetOrCreate(t *testing.T) {
	c := NewLRUCache[int](10, time.Hour)
	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCreate("k", create)
		if err != nil || v != 42 {
			t.Fatalf("GetOrCreate() = %v, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate("bad", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("expected create error, got %v", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed create must not be cached")
	}
}

func TestLRUCache_Purge(t *testing.T) {
	var evicted int
	c := NewLRUCache(10, time.Hour, WithEvictHook(func(string, int) { evicted++ }))
	c.Set("a", 1)
	c.Set("b", 2)
	c.Purge()
	if c.Size() != 0 || evicted != 2 {
		t.Errorf("Size()=%d evicted=%d", c.Size(), evicted)
	}
}

func TestManager_CleanNow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache(10, time.Minute, WithClock[int](clock.Now))
	c.Set("a", 1)

	m := NewManager(nil)
	m.Register(c)
	m.StartCleanup(time.Hour)
	defer m.Stop()

	clock.Advance(time.Hour)
	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow() = %d, want 1", n)
	}
	m.Stop()
}
