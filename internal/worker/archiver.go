// Package worker keeps an exported file in step with the records it was
// built from.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"elsa/internal/export"
	applog "elsa/internal/log"
	"elsa/internal/notify"
	"elsa/internal/services"
	"elsa/internal/sink"
)

const (
	DefaultDebounce = 2 * time.Second

	// maxWaitFactor bounds a burst: an export runs at the latest this many
	// debounce periods after the burst's first change.
	maxWaitFactor = 5

	maxResubscribeWait = 30 * time.Second
)

// Exporter produces one export into a sink.
type Exporter interface {
	Export(ctx context.Context, dst sink.Sink, owner string, kind services.ExportKind, format export.Format) (export.Result, error)
}

// Config selects what the archiver keeps current.
type Config struct {
	Owner    string
	Kind     services.ExportKind
	Format   export.Format
	Debounce time.Duration
	// MaxWait caps how long a steady stream of changes can postpone an
	// export. Defaults to five debounce periods.
	MaxWait time.Duration
}

// Archiver re-exports one owner's records to a sink whenever they change.
// Bursts of changes within Debounce collapse into a single export.
type Archiver struct {
	exports  Exporter
	notifier notify.Notifier
	dst      sink.Sink
	cfg      Config
	logger   *applog.Logger

	mu    sync.Mutex
	runs  int
	onRun func(export.Result, error)
}

func NewArchiver(exports Exporter, notifier notify.Notifier, dst sink.Sink, cfg Config, logger *applog.Logger) *Archiver {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxWait < cfg.Debounce {
		cfg.MaxWait = maxWaitFactor * cfg.Debounce
	}
	return &Archiver{
		exports:  exports,
		notifier: notifier,
		dst:      dst,
		cfg:      cfg,
		logger:   applog.OrNop(logger).WithComponent(applog.ComponentWorker).With(applog.FieldOwner, cfg.Owner),
	}
}

// OnRun registers a callback invoked after every export attempt.
func (a *Archiver) OnRun(fn func(export.Result, error)) {
	a.mu.Lock()
	a.onRun = fn
	a.mu.Unlock()
}

// Runs is the number of export attempts so far.
func (a *Archiver) Runs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

// Tables lists the tables an export kind reads.
func Tables(kind services.ExportKind) []string {
	switch kind {
	case services.ExportTransactions:
		return []string{notify.TableTransactions}
	case services.ExportDebts:
		return []string{notify.TableDebts}
	case services.ExportGoals:
		return []string{notify.TableGoals}
	default:
		return []string{notify.TableTransactions, notify.TableDebts, notify.TableGoals}
	}
}

// Run exports once, then again after each settled burst of changes, until
// ctx is cancelled. Only a failure of the first subscribe is returned.
// Export failures are logged and retried on the next change. When a
// subscription drops, Run subscribes again with backoff and re-exports.
func (a *Archiver) Run(ctx context.Context) error {
	trigger := make(chan struct{}, 1)
	signal := func(notify.Event) {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	w, err := a.watch(ctx, signal)
	if err != nil {
		return err
	}
	defer func() { w.release(a.logger) }()
	a.logger.InfoContext(ctx, "Archiver watching for changes",
		applog.FieldFormat, string(a.cfg.Format), applog.FieldExportKind, string(a.cfg.Kind))

	a.sync(ctx)

	timer := time.NewTimer(a.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()
	var burstStart time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.lost:
			a.logger.WarnContext(ctx, "Change subscription lost, resubscribing", applog.FieldError, w.cause())
			w.release(a.logger)
			next, err := a.resubscribe(ctx, signal)
			if err != nil {
				return nil
			}
			w = next
			timer.Stop()
			burstStart = time.Time{}
			a.sync(ctx)
		case <-trigger:
			now := time.Now()
			if burstStart.IsZero() {
				burstStart = now
			}
			wait := a.cfg.Debounce
			if left := burstStart.Add(a.cfg.MaxWait).Sub(now); left < wait {
				wait = max(left, 0)
			}
			timer.Reset(wait)
		case <-timer.C:
			burstStart = time.Time{}
			a.sync(ctx)
		}
	}
}

// resubscribe retries watch until it succeeds or ctx ends.
func (a *Archiver) resubscribe(ctx context.Context, signal func(notify.Event)) (*watch, error) {
	wait := a.cfg.Debounce
	for {
		w, err := a.watch(ctx, signal)
		if err == nil {
			a.logger.InfoContext(ctx, "Change subscription restored")
			return w, nil
		}
		a.logger.WarnContext(ctx, "Resubscribe failed", applog.FieldError, err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, maxResubscribeWait)
	}
}

// watch subscribes to every table the export reads. Either all
// subscriptions are held or none.
func (a *Archiver) watch(ctx context.Context, signal func(notify.Event)) (*watch, error) {
	w := &watch{lost: make(chan struct{}), stop: make(chan struct{})}
	for _, table := range Tables(a.cfg.Kind) {
		sub, err := a.notifier.Subscribe(ctx, notify.Scope{Table: table, Owner: a.cfg.Owner, Kinds: notify.AllKinds}, signal)
		if err != nil {
			w.release(a.logger)
			return nil, fmt.Errorf("subscribe to %s: %w", table, err)
		}
		w.add(sub)
	}
	return w, nil
}

// watch is the set of subscriptions behind one Run. lost is closed when
// any of them drops.
type watch struct {
	subs     []notify.Subscription
	lost     chan struct{}
	stop     chan struct{}
	lostOnce sync.Once
	stopOnce sync.Once

	mu      sync.Mutex
	dropped notify.Subscription
}

func (w *watch) add(sub notify.Subscription) {
	w.subs = append(w.subs, sub)
	dropped := notify.Dropped(sub)
	if dropped == nil {
		return
	}
	go func() {
		select {
		case <-w.stop:
		case <-dropped:
			w.mu.Lock()
			w.dropped = sub
			w.mu.Unlock()
			w.lostOnce.Do(func() { close(w.lost) })
		}
	}()
}

func (w *watch) cause() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.dropped.(notify.Droppable); ok {
		return d.Err()
	}
	return notify.ErrSubscriptionLost
}

func (w *watch) release(logger *applog.Logger) {
	w.stopOnce.Do(func() {
		close(w.stop)
		for _, sub := range w.subs {
			if err := sub.Unsubscribe(); err != nil {
				logger.Warn("Releasing change subscription failed", applog.FieldError, err)
			}
		}
	})
}

func (a *Archiver) sync(ctx context.Context) {
	res, err := a.exports.Export(ctx, a.dst, a.cfg.Owner, a.cfg.Kind, a.cfg.Format)
	switch {
	case errors.Is(err, export.ErrEmptyDataset):
		a.logger.DebugContext(ctx, "Nothing to archive yet")
	case err != nil:
		a.logger.WarnContext(ctx, "Archive export failed", applog.FieldError, err)
	default:
		a.logger.InfoContext(ctx, "Archive updated",
			applog.FieldFilename, res.Filename,
			applog.FieldRows, res.Rows,
			applog.FieldBytes, res.Bytes)
	}

	a.mu.Lock()
	a.runs++
	fn := a.onRun
	a.mu.Unlock()
	if fn != nil {
		fn(res, err)
	}
}
