// Package redis carries change notifications over Redis Pub/Sub, one
// channel per table and owner.
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	applog "elsa/internal/log"
	"elsa/internal/notify"
)

const (
	defaultPrefix      = "elsa"
	defaultPingTimeout = 5 * time.Second
)

// Config is the connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Notifier implements notify.Broker on Redis Pub/Sub.
type Notifier struct {
	client     *goredis.Client
	ownsClient bool
	prefix     string
	logger     *applog.Logger

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

type Option func(*Notifier)

// WithPrefix sets the channel prefix (default "elsa").
func WithPrefix(prefix string) Option {
	return func(n *Notifier) { n.prefix = prefix }
}

func WithLogger(l *applog.Logger) Option {
	return func(n *Notifier) { n.logger = l.WithComponent(applog.ComponentRedis) }
}

// New connects to Redis and verifies the connection.
func New(cfg Config, opts ...Option) (*Notifier, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	n := NewWithClient(client, opts...)
	n.ownsClient = true
	return n, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of it.
func NewWithClient(client *goredis.Client, opts ...Option) *Notifier {
	n := &Notifier{
		client: client,
		prefix: defaultPrefix,
		logger: applog.Nop(),
		subs:   map[*subscription]struct{}{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Channel is the Pub/Sub channel for a table and owner: "{prefix}:{table}:{owner}".
func Channel(prefix, table, owner string) string {
	return strings.Join([]string{prefix, table, owner}, ":")
}

func (n *Notifier) Publish(ctx context.Context, e notify.Event) error {
	data, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	channel := Channel(n.prefix, e.Table, e.Owner)
	if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	n.logger.DebugContext(ctx, "Published change event",
		applog.NewFields().WithChange(e.Table, e.Owner, string(e.Kind), e.RecordID).ToSlice()...)
	return nil
}

// Subscribe listens on the scope's channel until Unsubscribe is called. It
// returns only after Redis has confirmed the subscription.
func (n *Notifier) Subscribe(ctx context.Context, scope notify.Scope, fn func(notify.Event)) (notify.Subscription, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	channel := Channel(n.prefix, scope.Table, scope.Owner)

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pubsub := n.client.Subscribe(subCtx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	s := &subscription{n: n, pubsub: pubsub, cancel: cancel, done: make(chan struct{})}
	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()

	go s.loop(subCtx, scope, fn)

	n.logger.InfoContext(ctx, "Subscribed to change channel", "channel", channel)
	return s, nil
}

// Close releases every live subscription and, when owned, the client.
func (n *Notifier) Close() error {
	n.mu.Lock()
	subs := make([]*subscription, 0, len(n.subs))
	for s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	if n.ownsClient {
		return n.client.Close()
	}
	return nil
}

type subscription struct {
	n      *Notifier
	pubsub *goredis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *subscription) loop(ctx context.Context, scope notify.Scope, fn func(notify.Event)) {
	defer close(s.done)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			e, err := notify.EventFromJSON([]byte(msg.Payload))
			if err != nil {
				s.n.logger.Warn("Dropping malformed change event", "channel", msg.Channel, applog.FieldError, err)
				continue
			}
			if scope.Matches(e) {
				fn(e)
			}
		}
	}
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.pubsub.Close()
		<-s.done

		s.n.mu.Lock()
		delete(s.n.subs, s)
		s.n.mu.Unlock()
	})
	return s.err
}
