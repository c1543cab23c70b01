// Package notify defines the change-notification channel between the
// record store and live views: a view subscribes to changes of one table
// for one owner and is told that something changed, never what.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventKind is the kind of row change.
type EventKind string

const (
	Insert EventKind = "INSERT"
	Update EventKind = "UPDATE"
	Delete EventKind = "DELETE"
)

// AllKinds covers every row change.
var AllKinds = []EventKind{Insert, Update, Delete}

func (k EventKind) IsValid() bool {
	switch k {
	case Insert, Update, Delete:
		return true
	}
	return false
}

// Table names carried by events.
const (
	TableTransactions = "transactions"
	TableDebts        = "debts"
	TableGoals        = "savings_goals"
)

var ErrInvalidScope = errors.New("notify: scope needs a table and an owner")

// ErrSubscriptionLost is reported by a subscription that ended without
// Unsubscribe, typically because the broker connection went away.
var ErrSubscriptionLost = errors.New("notify: subscription lost")

// Scope selects the events a subscriber receives. An empty Kinds matches
// every kind.
type Scope struct {
	Table string
	Owner string
	Kinds []EventKind
}

func (s Scope) Validate() error {
	if strings.TrimSpace(s.Table) == "" || strings.TrimSpace(s.Owner) == "" {
		return ErrInvalidScope
	}
	for _, k := range s.Kinds {
		if !k.IsValid() {
			return fmt.Errorf("notify: unknown event kind %q", k)
		}
	}
	return nil
}

// Matches reports whether e falls within the scope.
func (s Scope) Matches(e Event) bool {
	if e.Table != s.Table || e.Owner != s.Owner {
		return false
	}
	if len(s.Kinds) == 0 {
		return true
	}
	for _, k := range s.Kinds {
		if k == e.Kind {
			return true
		}
	}
	return false
}

// Event is a single change notification.
type Event struct {
	Table    string    `json:"table"`
	Owner    string    `json:"owner"`
	Kind     EventKind `json:"kind"`
	RecordID string    `json:"record_id"`
	At       time.Time `json:"at"`
}

func NewEvent(table, owner string, kind EventKind, recordID string) Event {
	return Event{Table: table, Owner: owner, Kind: kind, RecordID: recordID, At: time.Now().UTC()}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// Subscription is a live registration. Unsubscribe is safe to call more
// than once; only the first call releases anything.
type Subscription interface {
	Unsubscribe() error
}

// Droppable is implemented by subscriptions that can end on their own.
// Dropped is closed when that happens and Err then reports why.
type Droppable interface {
	Dropped() <-chan struct{}
	Err() error
}

// Dropped returns the channel closed when sub ends without Unsubscribe. It
// is nil, and so never ready, for subscriptions that cannot drop.
func Dropped(sub Subscription) <-chan struct{} {
	if d, ok := sub.(Droppable); ok {
		return d.Dropped()
	}
	return nil
}

// Notifier delivers matching events to fn until the subscription is
// released. fn may be called from any goroutine.
type Notifier interface {
	Subscribe(ctx context.Context, scope Scope, fn func(Event)) (Subscription, error)
}

// Publisher announces a change.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Broker is both ends of the channel.
type Broker interface {
	Notifier
	Publisher
	Close() error
}

// SubscriptionFunc adapts a release function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Unsubscribe() error { return f() }
