package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "elsa/internal/log"
	"elsa/internal/notify"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures     = 5
	openTimeout     = 30 * time.Second
	maxBackoff      = 30 * time.Second
	maxDialAttempts = 5
	publishTimeout  = 5 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Client publishes change events to a topic exchange and consumes them
// through one exclusive queue per subscription.
type Client struct {
	url          string
	exchangeName string
	logger       *applog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

type Option func(*Client)

func WithLogger(l *applog.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(applog.ComponentAMQP) }
}

// NewClient dials the broker, retrying with exponential backoff, and
// declares the exchange.
func NewClient(ctx context.Context, url, exchangeName string, opts ...Option) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		logger:       applog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	for attempt := 0; attempt < maxDialAttempts; attempt++ {
		if err = c.connect(); err == nil {
			return c, nil
		}
		wait := exponentialBackoff(attempt)
		c.logger.WarnContext(ctx, "AMQP connect failed, retrying",
			applog.FieldError, err, "attempt", attempt+1, "wait", wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("connect AMQP after %d attempts: %w", maxDialAttempts, err)
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(channel, c.exchangeName); err != nil {
		channel.Close()
		conn.Close()
		return err
	}
	c.conn = conn
	c.channel = channel
	return nil
}

func declareExchange(ch *amqp091.Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// publishChannel returns the shared channel, reconnecting when it was lost.
func (c *Client) publishChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel, nil
}

// Publish sends e to the exchange under its routing key.
func (c *Client) Publish(ctx context.Context, e notify.Event) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: %w", RoutingKey(e), ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := publishing(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ch, err := c.publishChannel()
	if err != nil {
		c.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := RoutingKey(e)
	err = ch.PublishWithContext(ctx,
		c.exchangeName, // exchange
		key,            // routing key
		false,          // mandatory
		false,          // immediate
		msg,
	)
	if err != nil {
		if isConnectionError(err) {
			c.recordFailure()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.logger.DebugContext(ctx, "Published change event",
		"exchange", c.exchangeName, "routing_key", key)
	return nil
}

// Subscribe declares an exclusive, auto-deleted queue bound to the scope's
// routing keys and delivers each event to fn. The queue lives on its own
// channel; Unsubscribe closes that channel, which drops the queue.
func (c *Client) Subscribe(ctx context.Context, scope notify.Scope, fn func(notify.Event)) (notify.Subscription, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if c.isCircuitOpen() {
		return nil, fmt.Errorf("subscribe: %w", ErrCircuitOpen)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		if err := c.connect(); err != nil {
			c.recordFailure()
			return nil, err
		}
		c.mu.Lock()
		conn = c.conn
		c.mu.Unlock()
	}

	ch, err := conn.Channel()
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	closed := ch.NotifyClose(make(chan *amqp091.Error, 1))
	deliveries, err := c.bind(ch, scope)
	if err != nil {
		ch.Close()
		return nil, err
	}
	c.recordSuccess()

	s := newSubscription(ch, closed)
	go s.loop(context.WithoutCancel(ctx), c.logger.With(applog.FieldTable, scope.Table, applog.FieldOwner, scope.Owner), scope, deliveries, fn)

	c.logger.InfoContext(ctx, "Subscribed to change events",
		applog.FieldTable, scope.Table, applog.FieldOwner, scope.Owner)
	return s, nil
}

func (c *Client) bind(ch *amqp091.Channel, scope notify.Scope) (<-chan amqp091.Delivery, error) {
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	for _, key := range BindingKeys(scope) {
		if err := ch.QueueBind(q.Name, key, c.exchangeName, false, nil); err != nil {
			return nil, fmt.Errorf("bind queue %s: %w", key, err)
		}
	}
	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}
	return deliveries, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// subscription ends either through Unsubscribe or when its channel goes
// away underneath it. Only the latter closes dropped.
type subscription struct {
	channel *amqp091.Channel
	closed  <-chan *amqp091.Error
	done    chan struct{}
	dropped chan struct{}

	closing atomic.Bool
	lost    error
	once    sync.Once
	err     error
}

func newSubscription(ch *amqp091.Channel, closed <-chan *amqp091.Error) *subscription {
	return &subscription{
		channel: ch,
		closed:  closed,
		done:    make(chan struct{}),
		dropped: make(chan struct{}),
	}
}

func (s *subscription) loop(ctx context.Context, logger *applog.Logger, scope notify.Scope, deliveries <-chan amqp091.Delivery, fn func(notify.Event)) {
	defer close(s.done)
	for d := range deliveries {
		e, err := notify.EventFromJSON(d.Body)
		if err != nil {
			logger.WarnContext(ctx, "Dropping malformed change event", applog.FieldError, err)
			continue
		}
		if scope.Matches(e) {
			fn(e)
		}
	}
	if s.closing.Load() {
		return
	}

	s.lost = notify.ErrSubscriptionLost
	select {
	case reason, ok := <-s.closed:
		if ok && reason != nil {
			s.lost = fmt.Errorf("%w: %w", notify.ErrSubscriptionLost, reason)
		}
	default:
	}
	logger.WarnContext(ctx, "Change subscription lost", applog.FieldError, s.lost)
	close(s.dropped)
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.closing.Store(true)
		if s.channel != nil && !s.channel.IsClosed() {
			s.err = s.channel.Close()
		}
		<-s.done
	})
	return s.err
}

func (s *subscription) Dropped() <-chan struct{} { return s.dropped }

// Err reports why the subscription dropped, or nil while it is live.
func (s *subscription) Err() error {
	select {
	case <-s.dropped:
		return s.lost
	default:
		return nil
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff is 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
