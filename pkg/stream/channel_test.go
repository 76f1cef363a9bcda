package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverFrame struct {
	ConnID int
	Msg    Message
}

// wsServer upgrades every request and streams each received frame, tagged
// with its connection number, onto the frames channel. closeAfter forces the
// server to drop a connection after reading that many frames, zero disables.
func wsServer(t *testing.T, closeAfter int) (*httptest.Server, string, <-chan serverFrame) {
	t.Helper()

	frames := make(chan serverFrame, 64)
	var connSeq atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		id := int(connSeq.Add(1))

		read := 0
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			frames <- serverFrame{ConnID: id, Msg: msg}
			read++
			if closeAfter > 0 && id == 1 && read >= closeAfter {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv, "ws" + strings.TrimPrefix(srv.URL, "http"), frames
}

func testOptions(url string) Options {
	return Options{
		URL:                  url,
		PingInterval:         50 * time.Millisecond,
		PongTimeout:          50 * time.Millisecond,
		WriteTimeout:         time.Second,
		ReconnectBaseDelay:   5 * time.Millisecond,
		ReconnectMaxDelay:    20 * time.Millisecond,
		MaxReconnectAttempts: 5,
	}
}

func nextFrame(t *testing.T, frames <-chan serverFrame) serverFrame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return serverFrame{}
	}
}

func TestSubscriptionKeyCanonicalizes(t *testing.T) {
	a := Subscription{TxHash: "0xABC", SourceNetwork: "Arbitrum", DestinationNetwork: "Base", Address: "0xDEF"}
	b := Subscription{TxHash: "0xabc", SourceNetwork: "arbitrum", DestinationNetwork: "base", Address: "0xdef"}
	assert.Equal(t, a.Key(), b.Key())

	c := Subscription{TxHash: "0xabc"}
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestChannelReplaysSubscriptionsOnReconnect(t *testing.T) {
	// the server drops the first connection after the initial replay so the
	// channel has to reconnect and replay again
	_, url, frames := wsServer(t, 3)

	ch := NewChannel(testOptions(url), nil, nil, zerolog.Nop())
	subs := []Subscription{
		{TxHash: "0x01"},
		{SourceNetwork: "arbitrum", DestinationNetwork: "base"},
		{Address: "0xdef"},
	}
	for _, sub := range subs {
		require.NoError(t, ch.Subscribe(sub))
	}
	// re-subscribing must not change the replay position
	require.NoError(t, ch.Subscribe(subs[0]))

	ch.Connect(context.Background())
	defer ch.Close()

	for conn := 1; conn <= 2; conn++ {
		for i, want := range subs {
			f := nextFrame(t, frames)
			assert.Equal(t, conn, f.ConnID, "frame %d of connection %d", i, conn)
			assert.Equal(t, "subscribe", f.Msg.Type)
			assert.Equal(t, ch.ClientID(), f.Msg.ClientID)

			payload, ok := f.Msg.Payload.(map[string]interface{})
			require.True(t, ok, "payload %#v", f.Msg.Payload)
			if want.TxHash != "" {
				assert.Equal(t, want.TxHash, payload["tx_hash"])
			}
			if want.Address != "" {
				assert.Equal(t, want.Address, payload["address"])
			}
		}
	}
}

func TestChannelFlushesQueuedSendsInOrder(t *testing.T) {
	_, url, frames := wsServer(t, 0)

	ch := NewChannel(testOptions(url), nil, nil, zerolog.Nop())

	// queued while disconnected
	require.NoError(t, ch.Send(Message{Type: "first"}))
	require.NoError(t, ch.Send(Message{Type: "second"}))

	ch.Connect(context.Background())
	defer ch.Close()

	assert.Equal(t, "first", nextFrame(t, frames).Msg.Type)
	second := nextFrame(t, frames)
	assert.Equal(t, "second", second.Msg.Type)
	assert.False(t, second.Msg.Timestamp.IsZero())
}

func TestChannelSubscriptionReplayPrecedesOutbox(t *testing.T) {
	_, url, frames := wsServer(t, 0)

	ch := NewChannel(testOptions(url), nil, nil, zerolog.Nop())
	require.NoError(t, ch.Send(Message{Type: "status_update"}))
	require.NoError(t, ch.Subscribe(Subscription{TxHash: "0x01"}))

	ch.Connect(context.Background())
	defer ch.Close()

	assert.Equal(t, "subscribe", nextFrame(t, frames).Msg.Type)
	assert.Equal(t, "status_update", nextFrame(t, frames).Msg.Type)
}

func TestChannelUnsubscribeRemovesFromReplay(t *testing.T) {
	_, url, frames := wsServer(t, 0)

	ch := NewChannel(testOptions(url), nil, nil, zerolog.Nop())
	keep := Subscription{TxHash: "0x01"}
	drop := Subscription{TxHash: "0x02"}
	require.NoError(t, ch.Subscribe(keep))
	require.NoError(t, ch.Subscribe(drop))
	require.NoError(t, ch.Unsubscribe(drop))

	ch.Connect(context.Background())
	defer ch.Close()

	f := nextFrame(t, frames)
	assert.Equal(t, "subscribe", f.Msg.Type)
	payload := f.Msg.Payload.(map[string]interface{})
	assert.Equal(t, "0x01", payload["tx_hash"])

	select {
	case extra := <-frames:
		t.Fatalf("unexpected frame after replay: %#v", extra.Msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelDeliversInboundMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(Message{Type: "completed", Timestamp: time.Now().UTC()})
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	received := make(chan Message, 1)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ch := NewChannel(testOptions(url), func(msg Message) { received <- msg }, nil, zerolog.Nop())
	ch.Connect(context.Background())
	defer ch.Close()

	select {
	case msg := <-received:
		assert.Equal(t, "completed", msg.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("inbound message not delivered")
	}
}

func TestChannelStateTransitions(t *testing.T) {
	_, url, _ := wsServer(t, 0)

	states := make(chan State, 16)
	ch := NewChannel(testOptions(url), nil, func(s State) { states <- s }, zerolog.Nop())
	ch.Connect(context.Background())

	require.Equal(t, StateConnecting, <-states)
	require.Equal(t, StateConnected, <-states)

	ch.Close()
	require.Equal(t, StateDisconnected, <-states)
}

func TestChannelErrorsAfterReconnectBudget(t *testing.T) {
	opts := testOptions("ws://127.0.0.1:1/ws")
	opts.MaxReconnectAttempts = 2

	states := make(chan State, 16)
	ch := NewChannel(opts, nil, func(s State) { states <- s }, zerolog.Nop())
	ch.Connect(context.Background())
	defer ch.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s == StateError {
				return
			}
		case <-deadline:
			t.Fatalf("channel never reached %s, state %s", StateError, ch.State())
		}
	}
}

func TestChannelCloseWithoutConnect(t *testing.T) {
	ch := NewChannel(testOptions("ws://127.0.0.1:1/ws"), nil, nil, zerolog.Nop())

	closed := make(chan struct{})
	go func() {
		ch.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a channel that was never connected")
	}
	assert.Equal(t, StateDisconnected, ch.State())
}
