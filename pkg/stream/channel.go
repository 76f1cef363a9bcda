package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"omnibridge/pkg/events"
)

// State is the channel's connection lifecycle phase.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// Subscription scopes which transfer updates the server should push. Zero
// fields are wildcards.
type Subscription struct {
	TxHash             string `json:"tx_hash,omitempty"`
	SourceNetwork      string `json:"source_network,omitempty"`
	DestinationNetwork string `json:"destination_network,omitempty"`
	Address            string `json:"address,omitempty"`
}

// Key is the canonical identity of a subscription; two subscriptions with the
// same key are the same subscription.
func (s Subscription) Key() string {
	return strings.ToLower(fmt.Sprintf("%s|%s|%s|%s",
		s.TxHash, s.SourceNetwork, s.DestinationNetwork, s.Address))
}

// Message is one frame on the wire, in either direction.
type Message struct {
	Type      string      `json:"type"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Options configures the channel's timing. Zero values take the defaults.
type Options struct {
	URL                  string
	PingInterval         time.Duration
	PongTimeout          time.Duration
	WriteTimeout         time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
}

// DefaultOptions returns the channel timing defaults.
func DefaultOptions(url string) Options {
	return Options{
		URL:                  url,
		PingInterval:         25 * time.Second,
		PongTimeout:          10 * time.Second,
		WriteTimeout:         10 * time.Second,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions(o.URL)
	if o.PingInterval == 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PongTimeout == 0 {
		o.PongTimeout = d.PongTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.ReconnectBaseDelay == 0 {
		o.ReconnectBaseDelay = d.ReconnectBaseDelay
	}
	if o.ReconnectMaxDelay == 0 {
		o.ReconnectMaxDelay = d.ReconnectMaxDelay
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	return o
}

// Channel is a reconnecting websocket client for live transfer updates.
// Subscriptions survive reconnects: after every successful dial they are
// replayed in the order they were first added, before any queued outbound
// message is flushed.
type Channel struct {
	opts     Options
	clientID string
	log      zerolog.Logger

	onMessage func(Message)
	onState   func(State)

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	subs     map[string]Subscription
	subOrder []string
	outbox   []Message

	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel builds a channel for url. onMessage receives every inbound frame;
// onState observes lifecycle transitions. Either may be nil.
func NewChannel(opts Options, onMessage func(Message), onState func(State), log zerolog.Logger) *Channel {
	return &Channel{
		opts:      opts.withDefaults(),
		clientID:  uuid.NewString(),
		log:       log.With().Str("component", "stream").Logger(),
		onMessage: onMessage,
		onState:   onState,
		state:     StateDisconnected,
		subs:      make(map[string]Subscription),
		done:      make(chan struct{}),
	}
}

// ClientID returns the channel's stable client identity, sent with every
// outbound frame.
func (c *Channel) ClientID() string { return c.clientID }

// State returns the current lifecycle phase.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	cb := c.onState
	c.mu.Unlock()
	if changed && cb != nil {
		cb(s)
	}
}

// Connect starts the connection loop. It returns once the loop is running;
// delivery begins as soon as the first dial succeeds.
func (c *Channel) Connect(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	go c.run(runCtx)
}

// Close tears the channel down and waits for the loop to exit. Closing a
// channel that was never connected is a no-op.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-c.done
}

// Subscribe adds (or refreshes) a subscription and pushes it to the server if
// connected. Duplicate keys keep their original replay position.
func (c *Channel) Subscribe(sub Subscription) error {
	c.mu.Lock()
	key := sub.Key()
	if _, exists := c.subs[key]; !exists {
		c.subOrder = append(c.subOrder, key)
	}
	c.subs[key] = sub
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.writeMessage(Message{Type: "subscribe", Payload: sub})
}

// Unsubscribe removes a subscription and notifies the server if connected.
func (c *Channel) Unsubscribe(sub Subscription) error {
	c.mu.Lock()
	key := sub.Key()
	if _, exists := c.subs[key]; !exists {
		c.mu.Unlock()
		return nil
	}
	delete(c.subs, key)
	for i, k := range c.subOrder {
		if k == key {
			c.subOrder = append(c.subOrder[:i], c.subOrder[i+1:]...)
			break
		}
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return c.writeMessage(Message{Type: "unsubscribe", Payload: sub})
}

// Send delivers a frame to the server, queueing it in order while
// disconnected. Queued frames are flushed after the subscription replay on
// the next successful connect.
func (c *Channel) Send(msg Message) error {
	c.mu.Lock()
	if c.conn == nil {
		c.outbox = append(c.outbox, msg)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.writeMessage(msg)
}

// Relay forwards every dispatcher event onto the channel as a typed frame.
func (c *Channel) Relay(d *events.Dispatcher) {
	d.SubscribeAll(func(e events.Event) {
		if err := c.Send(Message{Type: string(e.Kind), Payload: e.Payload}); err != nil {
			c.log.Debug().Err(err).Str("kind", string(e.Kind)).Msg("failed to relay event")
		}
	})
}

// run owns the dial/read/reconnect cycle until the context is cancelled or
// the reconnect budget is exhausted.
func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateDisconnected)

	attempts := 0
	delay := c.opts.ReconnectBaseDelay

	for {
		if ctx.Err() != nil {
			return
		}

		if attempts == 0 {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempts++
			if attempts >= c.opts.MaxReconnectAttempts {
				c.log.Error().Err(err).Int("attempts", attempts).
					Msg("reconnect budget exhausted")
				c.setState(StateError)
				return
			}
			c.log.Warn().Err(err).Int("attempt", attempts).
				Dur("backoff", delay).Msg("connect failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.opts.ReconnectMaxDelay {
				delay = c.opts.ReconnectMaxDelay
			}
			continue
		}

		attempts = 0
		delay = c.opts.ReconnectBaseDelay

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)

		if err := c.resubscribe(); err != nil {
			c.log.Warn().Err(err).Msg("subscription replay failed")
		} else if err := c.flushOutbox(); err != nil {
			c.log.Warn().Err(err).Msg("outbox flush failed")
		}

		c.serve(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.setState(StateDisconnected)
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.WriteTimeout}
	conn, _, err := dialer.DialContext(ctx, c.opts.URL, nil)
	return conn, err
}

// resubscribe replays the active subscriptions in insertion order.
func (c *Channel) resubscribe() error {
	c.mu.Lock()
	subs := make([]Subscription, 0, len(c.subOrder))
	for _, key := range c.subOrder {
		subs = append(subs, c.subs[key])
	}
	c.mu.Unlock()

	for _, sub := range subs {
		if err := c.writeMessage(Message{Type: "subscribe", Payload: sub}); err != nil {
			return err
		}
	}
	return nil
}

// flushOutbox sends messages queued while disconnected, preserving order.
func (c *Channel) flushOutbox() error {
	c.mu.Lock()
	queued := c.outbox
	c.outbox = nil
	c.mu.Unlock()

	for i, msg := range queued {
		if err := c.writeMessage(msg); err != nil {
			// requeue the unsent tail so nothing is dropped
			c.mu.Lock()
			c.outbox = append(queued[i:], c.outbox...)
			c.mu.Unlock()
			return err
		}
	}
	return nil
}

// serve reads frames and keeps the connection alive with pings until it
// breaks or the context is cancelled.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	readDeadline := c.opts.PingInterval + c.opts.PongTimeout
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				deadline := time.Now().Add(c.opts.WriteTimeout)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					c.log.Debug().Err(err).Msg("ping failed")
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("connection lost")
			}
			break
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug().Err(err).Msg("discarding malformed frame")
			continue
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}

	conn.Close()
	<-pingDone
}

func (c *Channel) writeMessage(msg Message) error {
	msg.ClientID = c.clientID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		c.outbox = append(c.outbox, msg)
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.conn.WriteJSON(msg)
}
