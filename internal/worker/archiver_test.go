package worker

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"elsa/internal/export"
	"elsa/internal/notify"
	"elsa/internal/notify/memory"
	"elsa/internal/notify/notifytest"
	"elsa/internal/services"
	"elsa/internal/sink"
)

type fakeExporter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeExporter) Export(_ context.Context, _ sink.Sink, owner string, kind services.ExportKind, format export.Format) (export.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return export.Result{}, f.err
	}
	return export.Result{Filename: string(kind) + "." + format.Extension(), Format: format, Rows: 1}, nil
}

func startArchiver(t *testing.T, exp Exporter, broker notify.Notifier, kind services.ExportKind) (*Archiver, <-chan error) {
	t.Helper()
	return startArchiverWith(t, exp, broker, Config{
		Owner: "u1", Kind: kind, Format: export.FormatCSV, Debounce: 20 * time.Millisecond,
	})
}

func startArchiverWith(t *testing.T, exp Exporter, broker notify.Notifier, cfg Config) (*Archiver, <-chan error) {
	t.Helper()
	a := NewArchiver(exp, broker, sink.NewMemory(), cfg, nil)
	runs := make(chan error, 16)
	a.OnRun(func(_ export.Result, err error) { runs <- err })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("run: %v", err)
		}
	})
	return a, runs
}

func waitRun(t *testing.T, runs <-chan error) error {
	t.Helper()
	select {
	case err := <-runs:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("archiver did not run")
		return nil
	}
}

func expectNoRun(t *testing.T, runs <-chan error) {
	t.Helper()
	select {
	case <-runs:
		t.Fatalf("unexpected export")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestArchiverDebouncesBursts(t *testing.T) {
	broker := memory.New()
	exp := &fakeExporter{}
	a, runs := startArchiver(t, exp, broker, services.ExportTransactions)

	if err := waitRun(t, runs); err != nil {
		t.Fatalf("initial export: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		broker.Publish(ctx, notify.NewEvent(notify.TableTransactions, "u1", notify.Insert, "x"))
	}
	if err := waitRun(t, runs); err != nil {
		t.Fatalf("export after changes: %v", err)
	}
	expectNoRun(t, runs)
	if a.Runs() != 2 {
		t.Fatalf("runs = %d, want 2", a.Runs())
	}
}

func TestArchiverIgnoresUnrelatedChanges(t *testing.T) {
	broker := memory.New()
	_, runs := startArchiver(t, &fakeExporter{}, broker, services.ExportDebts)
	waitRun(t, runs)

	ctx := context.Background()
	broker.Publish(ctx, notify.NewEvent(notify.TableTransactions, "u1", notify.Insert, "x"))
	broker.Publish(ctx, notify.NewEvent(notify.TableDebts, "u2", notify.Insert, "x"))
	expectNoRun(t, runs)

	broker.Publish(ctx, notify.NewEvent(notify.TableDebts, "u1", notify.Update, "x"))
	waitRun(t, runs)
}

func TestArchiverKeepsRunningAfterFailure(t *testing.T) {
	broker := memory.New()
	exp := &fakeExporter{err: export.ErrEmptyDataset}
	_, runs := startArchiver(t, exp, broker, services.ExportGoals)

	if err := waitRun(t, runs); !errors.Is(err, export.ErrEmptyDataset) {
		t.Fatalf("expected empty dataset, got %v", err)
	}
	exp.mu.Lock()
	exp.err = nil
	exp.mu.Unlock()

	broker.Publish(context.Background(), notify.NewEvent(notify.TableGoals, "u1", notify.Insert, "x"))
	if err := waitRun(t, runs); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestArchiverSubscribeFailure(t *testing.T) {
	broker := notifytest.New()
	broker.FailNextSubscribe(errors.New("socket closed"))
	a := NewArchiver(&fakeExporter{}, broker, sink.NewMemory(), Config{Owner: "u1", Kind: services.ExportReport}, nil)

	if err := a.Run(context.Background()); err == nil {
		t.Fatalf("expected subscribe error")
	}
	if broker.Subscribers() != 0 {
		t.Fatalf("dangling subscriptions: %d", broker.Subscribers())
	}
}

func TestArchiverSubscribeFailureReleasesEarlierTables(t *testing.T) {
	broker := &failingAfter{Broker: memory.New(), ok: 2}
	a := NewArchiver(&fakeExporter{}, broker, sink.NewMemory(), Config{Owner: "u1", Kind: services.ExportReport}, nil)

	if err := a.Run(context.Background()); err == nil {
		t.Fatalf("expected subscribe error")
	}
	if broker.Subscribers() != 0 {
		t.Fatalf("partial subscription left %d registrations", broker.Subscribers())
	}
}

// failingAfter accepts ok subscriptions and fails the rest.
type failingAfter struct {
	*memory.Broker
	ok int
}

func (f *failingAfter) Subscribe(ctx context.Context, scope notify.Scope, fn func(notify.Event)) (notify.Subscription, error) {
	if f.ok == 0 {
		return nil, errors.New("channel limit reached")
	}
	f.ok--
	return f.Broker.Subscribe(ctx, scope, fn)
}

func TestArchiverResubscribesAfterDrop(t *testing.T) {
	broker := notifytest.New()
	_, runs := startArchiver(t, &fakeExporter{}, broker, services.ExportReport)
	waitRun(t, runs)

	if dropped := broker.DropAll(errors.New("connection reset")); dropped != 3 {
		t.Fatalf("dropped %d subscriptions, want 3", dropped)
	}
	if err := waitRun(t, runs); err != nil {
		t.Fatalf("catch-up export after resubscribing: %v", err)
	}
	if acq, _ := broker.Counts("u1"); acq != 6 {
		t.Fatalf("acquired=%d, want 6", acq)
	}
	if broker.Subscribers() != 3 {
		t.Fatalf("live subscriptions = %d, want 3", broker.Subscribers())
	}

	broker.Publish(context.Background(), notify.NewEvent(notify.TableGoals, "u1", notify.Insert, "x"))
	if err := waitRun(t, runs); err != nil {
		t.Fatalf("export after resubscribed change: %v", err)
	}
}

func TestArchiverSteadyChangesStillExport(t *testing.T) {
	broker := memory.New()
	_, runs := startArchiverWith(t, &fakeExporter{}, broker, Config{
		Owner: "u1", Kind: services.ExportTransactions, Format: export.FormatCSV,
		Debounce: 50 * time.Millisecond, MaxWait: 150 * time.Millisecond,
	})
	waitRun(t, runs)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				broker.Publish(context.Background(), notify.NewEvent(notify.TableTransactions, "u1", notify.Insert, "x"))
			}
		}
	}()

	if err := waitRun(t, runs); err != nil {
		t.Fatalf("export during a steady stream of changes: %v", err)
	}
}

func TestMaxWaitDefault(t *testing.T) {
	a := NewArchiver(&fakeExporter{}, memory.New(), sink.NewMemory(), Config{Owner: "u1", Debounce: time.Second}, nil)
	if a.cfg.MaxWait != 5*time.Second {
		t.Fatalf("MaxWait = %v, want 5s", a.cfg.MaxWait)
	}
}

func TestTables(t *testing.T) {
	if got := Tables(services.ExportGoals); !slices.Equal(got, []string{notify.TableGoals}) {
		t.Fatalf("goals tables = %v", got)
	}
	if got := Tables(services.ExportReport); len(got) != 3 {
		t.Fatalf("report tables = %v", got)
	}
}
