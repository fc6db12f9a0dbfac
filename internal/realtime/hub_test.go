package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_PublishReachesOnlineUser(t *testing.T) {
	hub := startHub(t)
	userID := uuid.New()
	client := &Client{Hub: hub, Send: make(chan []byte, 4), UserID: userID}

	hub.Register <- client
	require.Eventually(t, func() bool { return hub.IsUserOnline(userID) }, time.Second, 5*time.Millisecond)

	hub.Publish(userID, EventBooking, map[string]string{"listing_id": "abc"})

	select {
	case raw := <-client.Send:
		var ev struct {
			Type string            `json:"type"`
			Data map[string]string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, EventBooking, ev.Type)
		assert.Equal(t, "abc", ev.Data["listing_id"])
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHub_PublishSkipsOtherUsers(t *testing.T) {
	hub := startHub(t)
	client := &Client{Hub: hub, Send: make(chan []byte, 4), UserID: uuid.New()}
	hub.Register <- client

	hub.Publish(uuid.New(), EventMessage, "hi")

	assert.Empty(t, client.Send)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := startHub(t)
	userID := uuid.New()
	client := &Client{Hub: hub, Send: make(chan []byte, 4), UserID: userID}
	hub.Register <- client
	hub.Unregister <- client

	require.Eventually(t, func() bool { return !hub.IsUserOnline(userID) }, time.Second, 5*time.Millisecond)
	_, ok := <-client.Send
	assert.False(t, ok)
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := startHub(t)
	userID := uuid.New()
	client := &Client{Hub: hub, Send: make(chan []byte, 1), UserID: userID}
	hub.Register <- client
	require.Eventually(t, func() bool { return hub.IsUserOnline(userID) }, time.Second, 5*time.Millisecond)

	hub.Publish(userID, EventMessage, "one")
	hub.Publish(userID, EventMessage, "two")

	assert.Len(t, client.Send, 1)
}

func TestHub_LeaveAndJoinAfterStop(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := &Client{Hub: hub, Send: make(chan []byte, 1), UserID: uuid.New()}
	require.True(t, hub.Join(client))
	cancel()

	select {
	case <-hub.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	left := make(chan struct{})
	go func() {
		hub.Leave(client)
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("Leave blocked after the hub stopped")
	}

	assert.False(t, hub.Join(&Client{Hub: hub, Send: make(chan []byte, 1), UserID: uuid.New()}))
	_, ok := <-client.Send
	assert.False(t, ok)
}
