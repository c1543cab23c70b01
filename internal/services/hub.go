package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"elsa/internal/aggregate"
	"elsa/internal/cache"
	"elsa/internal/core"
	applog "elsa/internal/log"
	"elsa/internal/notify"
	"elsa/internal/records"
)

const initialLoadTimeout = 5 * time.Second

// HubConfig bounds the session cache.
type HubConfig struct {
	MaxSessions int
	SessionTTL  time.Duration
	Colors      aggregate.ColorPicker
}

// Session is one owner's live state: the transaction collection and the
// expense aggregate built from it.
type Session struct {
	owner        string
	transactions *records.Collection[core.Transaction]
	view         *aggregate.View
	cancel       context.CancelFunc
	done         chan struct{}
	closeOnce    sync.Once
}

func (s *Session) Owner() string { return s.owner }

// View is the session's aggregate view.
func (s *Session) View() *aggregate.View { return s.view }

// Live reports whether the change subscription is held. It turns false
// when the subscription drops; the next Hub.Session call resubscribes.
func (s *Session) Live() bool { return s.view.Live() }

// Chart returns the current chart, waiting for the first load if none
// happened yet.
func (s *Session) Chart(ctx context.Context) aggregate.Chart {
	if !s.transactions.Loaded() {
		waitCtx, cancel := context.WithTimeout(ctx, initialLoadTimeout)
		defer cancel()
		_ = s.view.Settle(waitCtx)
	}
	return s.view.Current().Chart()
}

// Updates streams every rebuilt aggregate.
func (s *Session) Updates() (<-chan aggregate.Aggregate, func()) {
	return s.view.Updates()
}

// Close releases the subscription and stops the view.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.view.Close()
		s.cancel()
		<-s.done
	})
}

// Hub keeps at most one Session per owner in an LRU cache. Sessions that
// age out or are pushed out are closed.
type Hub struct {
	store    RecordReader
	notifier notify.Notifier
	colors   aggregate.ColorPicker
	logger   *applog.Logger
	base     context.Context
	sessions *cache.LRUCache[*Session]
}

// NewHub creates a hub. Session goroutines stop when ctx is cancelled.
func NewHub(ctx context.Context, store RecordReader, notifier notify.Notifier, cfg HubConfig, logger *applog.Logger) *Hub {
	h := &Hub{
		store:    store,
		notifier: notifier,
		colors:   cfg.Colors,
		logger:   applog.OrNop(logger).WithComponent(applog.ComponentSession),
		base:     ctx,
	}
	if h.colors == nil {
		h.colors = aggregate.StableColors{}
	}
	h.sessions = cache.NewLRUCache(cfg.MaxSessions, cfg.SessionTTL,
		cache.WithSlidingTTL[*Session](),
		cache.WithEvictHook(func(owner string, s *Session) {
			h.logger.Info("Session closed", applog.FieldOwner, owner)
			s.Close()
		}))
	return h
}

// Cache exposes the session cache for periodic cleanup.
func (h *Hub) Cache() cache.Cleaner { return h.sessions }

// Session returns the owner's session, creating it on first use. A session
// whose subscription could not be acquired is still returned (its chart
// stays readable) along with an error wrapping
// aggregate.ErrSubscriptionFailure; the next call retries.
func (h *Hub) Session(ctx context.Context, owner string) (*Session, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, core.ErrEmptyOwner
	}

	if s, ok := h.sessions.Get(owner); ok {
		if !s.Live() {
			return s, h.subscribe(ctx, s)
		}
		return s, nil
	}

	fresh := h.newSession(owner)
	s, err := h.sessions.GetOrCreate(owner, func() (*Session, error) { return fresh, nil })
	if err != nil {
		fresh.Close()
		return nil, err
	}
	if s != fresh {
		fresh.Close()
		return s, nil
	}
	h.logger.InfoContext(ctx, "Session opened", applog.FieldOwner, owner)
	return s, h.subscribe(ctx, s)
}

func (h *Hub) newSession(owner string) *Session {
	coll := records.NewCollection(func(ctx context.Context) ([]core.Transaction, error) {
		return h.store.ListTransactions(ctx, owner)
	})
	view := aggregate.NewView(coll, h.notifier,
		aggregate.WithColors(h.colors),
		aggregate.WithLogger(h.logger.With(applog.FieldOwner, owner)))

	runCtx, cancel := context.WithCancel(h.base)
	s := &Session{
		owner:        owner,
		transactions: coll,
		view:         view,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		view.Run(runCtx)
	}()
	return s
}

func (h *Hub) subscribe(ctx context.Context, s *Session) error {
	err := s.view.SetOwner(ctx, s.owner)
	if err == nil {
		return nil
	}
	if errors.Is(err, aggregate.ErrSubscriptionFailure) {
		// Serve from a plain load until the subscription can be acquired.
		s.view.RequestRefetch()
	}
	return fmt.Errorf("open session for %s: %w", s.owner, err)
}

// Drop closes the owner's session, if any.
func (h *Hub) Drop(owner string) {
	if s, ok := h.sessions.Delete(owner); ok {
		s.Close()
	}
}

// Len is the number of open sessions.
func (h *Hub) Len() int { return h.sessions.Size() }

// Close closes every session.
func (h *Hub) Close() {
	h.sessions.Purge()
}
