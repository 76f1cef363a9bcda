package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRoutesByKind(t *testing.T) {
	d := NewDispatcher()

	var sent, failed []Event
	d.Subscribe(KindTransactionSent, func(e Event) { sent = append(sent, e) })
	d.Subscribe(KindTransactionFailed, func(e Event) { failed = append(failed, e) })

	d.Emit(KindTransactionSent, "payload-a")
	d.Emit(KindTransactionSent, "payload-b")
	d.Emit(KindCompleted, "ignored")

	require.Len(t, sent, 2)
	assert.Equal(t, "payload-a", sent[0].Payload)
	assert.Equal(t, "payload-b", sent[1].Payload)
	assert.Empty(t, failed)
}

func TestDispatcherSubscribeAllSeesEverything(t *testing.T) {
	d := NewDispatcher()

	var kinds []Kind
	d.SubscribeAll(func(e Event) { kinds = append(kinds, e.Kind) })

	d.Emit(KindApprovalRequired, nil)
	d.Emit(KindStatusUpdate, nil)
	d.Emit(KindFailed, nil)

	assert.Equal(t, []Kind{KindApprovalRequired, KindStatusUpdate, KindFailed}, kinds)
}

func TestDispatcherMultipleHandlersAllInvoked(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	d.Subscribe(KindCompleted, func(Event) { calls++ })
	d.Subscribe(KindCompleted, func(Event) { calls++ })
	d.SubscribeAll(func(Event) { calls++ })

	d.Emit(KindCompleted, nil)
	assert.Equal(t, 3, calls)
}

func TestDispatcherStampsTimestamp(t *testing.T) {
	d := NewDispatcher()

	var got Event
	d.Subscribe(KindFeeEstimated, func(e Event) { got = e })
	d.Emit(KindFeeEstimated, 42)

	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, 42, got.Payload)
}
