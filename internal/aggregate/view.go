package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"elsa/internal/core"
	applog "elsa/internal/log"
	"elsa/internal/notify"
)

// ErrSubscriptionFailure wraps any error raised while acquiring the change
// subscription. The previous aggregate stays readable when it occurs.
var ErrSubscriptionFailure = errors.New("change subscription failed")

// ErrViewClosed is returned by operations on a closed view.
var ErrViewClosed = errors.New("aggregate view closed")

// TransactionSource is the owner's transaction collection. It delivers each
// new snapshot to subscribers and can be asked to refetch.
type TransactionSource interface {
	Current() []core.Transaction
	Subscribe(fn func([]core.Transaction)) (unsubscribe func())
	Refetch(ctx context.Context) error
}

type task func(ctx context.Context)

// View keeps the expense aggregate of one owner current. Snapshot rebuilds
// and refetch requests run one at a time, in arrival order, on the
// goroutine executing Run.
type View struct {
	source   TransactionSource
	notifier notify.Notifier
	colors   ColorPicker
	logger   *applog.Logger

	aggMu sync.RWMutex
	agg   Aggregate

	queueMu sync.Mutex
	queue   []task
	wake    chan struct{}
	closed  bool
	done    chan struct{}

	ownerMu sync.Mutex
	owner   string
	sub     *heldSubscription

	listenMu  sync.Mutex
	listeners map[int]chan Aggregate
	nextID    int

	unsubscribeSource func()
	closeOnce         sync.Once
}

type ViewOption func(*View)

func WithColors(c ColorPicker) ViewOption {
	return func(v *View) { v.colors = c }
}

func WithLogger(l *applog.Logger) ViewOption {
	return func(v *View) { v.logger = l.WithComponent(applog.ComponentAggregate) }
}

// NewView wires a view to its source. Snapshots delivered by the source
// are queued for a full rebuild; nothing runs until Run is called.
func NewView(source TransactionSource, notifier notify.Notifier, opts ...ViewOption) *View {
	v := &View{
		source:    source,
		notifier:  notifier,
		colors:    StableColors{},
		logger:    applog.Nop(),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		listeners: map[int]chan Aggregate{},
	}
	for _, opt := range opts {
		opt(v)
	}
	v.unsubscribeSource = source.Subscribe(func(snapshot []core.Transaction) {
		v.enqueue(func(context.Context) { v.rebuild(snapshot) })
	})
	return v
}

// Run executes queued tasks until ctx is cancelled or the view is closed.
func (v *View) Run(ctx context.Context) error {
	for {
		for {
			t, ok := v.next()
			if !ok {
				break
			}
			t(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.done:
			return nil
		case <-v.wake:
		}
	}
}

func (v *View) enqueue(t task) bool {
	v.queueMu.Lock()
	if v.closed {
		v.queueMu.Unlock()
		return false
	}
	v.queue = append(v.queue, t)
	v.queueMu.Unlock()

	select {
	case v.wake <- struct{}{}:
	default:
	}
	return true
}

func (v *View) next() (task, bool) {
	v.queueMu.Lock()
	defer v.queueMu.Unlock()
	if len(v.queue) == 0 || v.closed {
		return nil, false
	}
	t := v.queue[0]
	v.queue[0] = nil
	v.queue = v.queue[1:]
	return t, true
}

func (v *View) pending() int {
	v.queueMu.Lock()
	defer v.queueMu.Unlock()
	return len(v.queue)
}

func (v *View) rebuild(snapshot []core.Transaction) {
	agg := Build(snapshot, v.colors)

	v.aggMu.Lock()
	v.agg = agg
	v.aggMu.Unlock()

	v.logger.Debug("Aggregate rebuilt",
		applog.FieldSnapshotSize, len(snapshot),
		applog.FieldCategories, len(agg.Entries))
	v.broadcast(agg)
}

// refetch asks the source for a new snapshot; the snapshot arrives through
// the source subscription and is rebuilt as a separate task.
func (v *View) refetch(ctx context.Context) {
	if err := v.source.Refetch(ctx); err != nil {
		v.logger.WarnContext(ctx, "Refetch failed, keeping previous aggregate",
			applog.FieldOperation, applog.OpRefetch, applog.FieldError, err)
	}
}

// RequestRefetch queues a refetch.
func (v *View) RequestRefetch() {
	v.enqueue(v.refetch)
}

// SetOwner scopes the change subscription to owner. Switching owners
// releases the previous subscription first; an empty owner only releases.
// Acquiring a subscription also queues an initial refetch.
func (v *View) SetOwner(ctx context.Context, owner string) error {
	v.ownerMu.Lock()
	defer v.ownerMu.Unlock()

	if v.isClosed() {
		return ErrViewClosed
	}
	if owner == v.owner && (owner == "" || v.sub != nil) {
		return nil
	}

	v.releaseLocked()
	v.owner = owner
	if owner == "" {
		return nil
	}

	scope := notify.Scope{Table: notify.TableTransactions, Owner: owner, Kinds: notify.AllKinds}
	sub, err := v.notifier.Subscribe(ctx, scope, func(notify.Event) {
		v.enqueue(v.refetch)
	})
	if err != nil {
		v.logger.ErrorContext(ctx, "Change subscription failed",
			applog.FieldOwner, owner,
			applog.FieldOperation, applog.OpSubscribe,
			applog.FieldError, err)
		return fmt.Errorf("%w: %w", ErrSubscriptionFailure, err)
	}
	held := &heldSubscription{sub: sub, released: make(chan struct{})}
	v.sub = held
	if dropped := notify.Dropped(sub); dropped != nil {
		go v.watchDrop(owner, held, dropped)
	}
	v.logger.InfoContext(ctx, "Change subscription acquired", applog.FieldOwner, owner)

	v.enqueue(v.refetch)
	return nil
}

// watchDrop lets go of held when it ends underneath the view, so Live
// turns false and the next SetOwner for the same owner subscribes again.
func (v *View) watchDrop(owner string, held *heldSubscription, dropped <-chan struct{}) {
	select {
	case <-held.released:
		return
	case <-dropped:
	}

	v.ownerMu.Lock()
	defer v.ownerMu.Unlock()
	if v.sub != held {
		return
	}
	var cause error
	if d, ok := held.sub.(notify.Droppable); ok {
		cause = d.Err()
	}
	v.logger.Warn("Change subscription lost, aggregate no longer live",
		applog.FieldOwner, owner,
		applog.FieldOperation, applog.OpSubscribe,
		applog.FieldError, cause)
	v.releaseLocked()

	// Listeners get the unchanged aggregate so they can notice.
	v.enqueue(func(context.Context) { v.broadcast(v.Current()) })
}

// Live reports whether a change subscription is currently held.
func (v *View) Live() bool {
	v.ownerMu.Lock()
	defer v.ownerMu.Unlock()
	return v.sub != nil
}

// Owner is the identity the view is currently scoped to.
func (v *View) Owner() string {
	v.ownerMu.Lock()
	defer v.ownerMu.Unlock()
	return v.owner
}

func (v *View) releaseLocked() {
	if v.sub == nil {
		return
	}
	if err := v.sub.release(); err != nil {
		v.logger.Warn("Releasing change subscription failed",
			applog.FieldOwner, v.owner, applog.FieldError, err)
	}
	v.sub = nil
}

// Current returns the latest aggregate.
func (v *View) Current() Aggregate {
	v.aggMu.RLock()
	defer v.aggMu.RUnlock()
	return v.agg.clone()
}

// Updates returns a channel receiving every rebuilt aggregate. A slow
// reader only ever sees the latest one. The channel is closed by cancel or
// by Close.
func (v *View) Updates() (<-chan Aggregate, func()) {
	ch := make(chan Aggregate, 1)

	v.listenMu.Lock()
	id := v.nextID
	v.nextID++
	if v.isClosed() {
		v.listenMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	v.listeners[id] = ch
	v.listenMu.Unlock()

	return ch, func() {
		v.listenMu.Lock()
		defer v.listenMu.Unlock()
		if c, ok := v.listeners[id]; ok {
			delete(v.listeners, id)
			close(c)
		}
	}
}

func (v *View) broadcast(agg Aggregate) {
	v.listenMu.Lock()
	defer v.listenMu.Unlock()
	for _, ch := range v.listeners {
		select {
		case ch <- agg.clone():
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- agg.clone():
			default:
			}
		}
	}
}

// Settle blocks until the queue has drained, including tasks queued by
// tasks that ran meanwhile. Run must be executing.
func (v *View) Settle(ctx context.Context) error {
	reached := make(chan struct{})
	var barrier task
	barrier = func(context.Context) {
		if v.pending() > 0 {
			v.enqueue(barrier)
			return
		}
		close(reached)
	}
	if !v.enqueue(barrier) {
		return ErrViewClosed
	}
	select {
	case <-reached:
		return nil
	case <-v.done:
		return ErrViewClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *View) isClosed() bool {
	v.queueMu.Lock()
	defer v.queueMu.Unlock()
	return v.closed
}

// Close releases the subscription and the source registration, stops Run
// and closes every update channel. It is safe to call more than once.
func (v *View) Close() error {
	v.closeOnce.Do(func() {
		v.ownerMu.Lock()
		v.releaseLocked()
		v.owner = ""
		v.ownerMu.Unlock()

		v.unsubscribeSource()

		v.queueMu.Lock()
		v.closed = true
		v.queue = nil
		v.queueMu.Unlock()
		close(v.done)

		v.listenMu.Lock()
		for id, ch := range v.listeners {
			delete(v.listeners, id)
			close(ch)
		}
		v.listenMu.Unlock()
	})
	return nil
}

// heldSubscription releases its subscription at most once.
type heldSubscription struct {
	sub      notify.Subscription
	released chan struct{}
	once     sync.Once
	err      error
}

func (h *heldSubscription) release() error {
	h.once.Do(func() {
		close(h.released)
		h.err = h.sub.Unsubscribe()
	})
	return h.err
}
