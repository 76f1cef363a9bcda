package events

import (
	"sync"
	"time"
)

// Kind identifies one event category. The set is fixed; payload shapes are
// stable per kind.
type Kind string

const (
	KindApprovalRequired     Kind = "approval_required"
	KindApprovalConfirmed    Kind = "approval_confirmed"
	KindBalanceInsufficient  Kind = "balance_insufficient"
	KindFeeEstimated         Kind = "fee_estimated"
	KindTransactionSent      Kind = "transaction_sent"
	KindTransactionConfirmed Kind = "transaction_confirmed"
	KindTransactionFailed    Kind = "transaction_failed"
	KindStatusUpdate         Kind = "status_update"
	KindCompleted            Kind = "completed"
	KindFailed               Kind = "failed"
)

// Event is one notification with its kind-specific payload.
type Event struct {
	Kind      Kind        `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Handler receives events synchronously; handlers must not block.
type Handler func(Event)

// Dispatcher fans events out to subscribed handlers. It replaces the
// source's ambient emitter registry with explicit instance state.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers a handler for one event kind.
func (d *Dispatcher) Subscribe(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], h)
}

// SubscribeAll registers a handler for every event kind.
func (d *Dispatcher) SubscribeAll(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, h)
}

// Emit delivers the event to all matching handlers.
func (d *Dispatcher) Emit(kind Kind, payload interface{}) {
	evt := Event{Kind: kind, Timestamp: time.Now().UTC(), Payload: payload}

	d.mu.RLock()
	matched := make([]Handler, 0, len(d.handlers[kind])+len(d.all))
	matched = append(matched, d.handlers[kind]...)
	matched = append(matched, d.all...)
	d.mu.RUnlock()

	for _, h := range matched {
		h(evt)
	}
}
