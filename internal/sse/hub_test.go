package sse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(id, party string) *Client {
	return &Client{ID: id, Party: party, Send: make(chan []byte, 256)}
}

func expectEvent(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case msg := <-client.Send:
		var event Event
		require.NoError(t, json.Unmarshal(msg, &event))
		return event
	case <-time.After(100 * time.Millisecond):
		t.Fatal("did not receive message")
		return Event{}
	}
}

func expectNothing(t *testing.T, client *Client) {
	t.Helper()
	select {
	case msg := <-client.Send:
		t.Fatalf("unexpected message: %s", msg)
	case <-time.After(30 * time.Millisecond):
	}
}

func decodeData(t *testing.T, event Event, v any) {
	t.Helper()
	dataBytes, err := json.Marshal(event.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(dataBytes, v))
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.broadcast)
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newClient("client-1", "ICU")

	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, exists := hub.clients[client.ID]
	hub.mu.RUnlock()
	assert.True(t, exists)

	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, exists = hub.clients[client.ID]
	hub.mu.RUnlock()
	assert.False(t, exists)

	_, ok := <-client.Send
	assert.False(t, ok, "send channel should be closed")
}

func TestHub_UnregisterNonexistentClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	assert.NotPanics(t, func() {
		hub.Unregister(newClient("ghost", ""))
		time.Sleep(10 * time.Millisecond)
	})
}

func TestHub_PublishCallCreated_ToParties(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	sender := newClient("s", "ER")
	target := newClient("t", "ICU")
	outsider := newClient("o", "Radiology")
	admin := newClient("a", "")
	for _, c := range []*Client{sender, target, outsider, admin} {
		hub.Register(c)
	}
	time.Sleep(10 * time.Millisecond)

	created := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	hub.PublishCallCreated("ER", "call-1", "Code blue", []string{"Dr. B_ICU"}, []string{"ICU"}, created)

	for _, c := range []*Client{sender, target, admin} {
		event := expectEvent(t, c)
		assert.Equal(t, EventCallCreated, event.Type)

		var data CallCreatedEvent
		decodeData(t, event, &data)
		assert.Equal(t, "call-1", data.CallID)
		assert.Equal(t, "ER", data.FromTeam)
		assert.Equal(t, []string{"Dr. B_ICU"}, data.Targets)
		assert.True(t, created.Equal(data.CreatedAt))
	}
	expectNothing(t, outsider)
}

func TestHub_PublishCallStatus(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	sender := newClient("s", "ER")
	other := newClient("o", "Cardiology")
	hub.Register(sender)
	hub.Register(other)
	time.Sleep(10 * time.Millisecond)

	hub.PublishCallStatus("ER", "call-1", "ICU", "accepted")

	event := expectEvent(t, sender)
	assert.Equal(t, EventCallStatus, event.Type)
	var data CallStatusEvent
	decodeData(t, event, &data)
	assert.Equal(t, CallStatusEvent{CallID: "call-1", FromTeam: "ER", Team: "ICU", Status: "accepted"}, data)
	expectNothing(t, other)
}

func TestHub_PublishCallCancelled(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	target := newClient("t", "ICU")
	hub.Register(target)
	time.Sleep(10 * time.Millisecond)

	hub.PublishCallCancelled("ER", "call-1", []string{"ICU"})

	event := expectEvent(t, target)
	assert.Equal(t, EventCallCancelled, event.Type)
}

func TestHub_FullBufferDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := &Client{ID: "c", Party: "ER", Send: make(chan []byte, 1)}
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	hub.PublishCallCancelled("ER", "call-1", nil)
	hub.PublishCallCancelled("ER", "call-2", nil)
	time.Sleep(20 * time.Millisecond)

	event := expectEvent(t, client)
	var data CallCancelledEvent
	decodeData(t, event, &data)
	assert.Equal(t, "call-1", data.CallID)
	expectNothing(t, client)
}
