package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

func newTestClient(postID primitive.ObjectID, buffer int) *Client {
	return &Client{
		UserID: primitive.NewObjectID(),
		PostID: postID,
		send:   make(chan EventBatch, buffer),
	}
}

func waitForSubscribers(t *testing.T, hub *Hub, postID primitive.ObjectID, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount(postID) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("subscriber count never reached %d", want)
}

func TestHubDeliversFramesToPostSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	postID := primitive.NewObjectID()
	otherPost := primitive.NewObjectID()

	subscriber := newTestClient(postID, 4)
	bystander := newTestClient(otherPost, 4)
	hub.register <- subscriber
	hub.register <- bystander
	waitForSubscribers(t, hub, postID, 1)
	waitForSubscribers(t, hub, otherPost, 1)

	batch := EventBatch{
		PostID:   postID,
		Comments: []models.Comment{{ID: primitive.NewObjectID(), PostID: postID, Content: "hello"}},
	}
	hub.BroadcastToPost(postID, batch)

	select {
	case got := <-subscriber.send:
		assert.Equal(t, postID, got.PostID)
		require.Len(t, got.Comments, 1)
		assert.Equal(t, "hello", got.Comments[0].Content)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the frame")
	}

	select {
	case <-bystander.send:
		t.Fatal("frame leaked to a subscriber of another post")
	default:
	}
}

func TestHubDropsFramesForSlowClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	postID := primitive.NewObjectID()
	slow := newTestClient(postID, 1)
	hub.register <- slow
	waitForSubscribers(t, hub, postID, 1)

	// Fill the buffer, then broadcast once more; the extra frame must be
	// dropped without blocking the hub.
	hub.BroadcastToPost(postID, EventBatch{PostID: postID})
	done := make(chan struct{})
	go func() {
		hub.BroadcastToPost(postID, EventBatch{PostID: postID})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}

func TestHubUnregisterRemovesSubscription(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	postID := primitive.NewObjectID()
	client := newTestClient(postID, 1)
	hub.register <- client
	waitForSubscribers(t, hub, postID, 1)

	hub.unregister <- client
	waitForSubscribers(t, hub, postID, 0)

	_, open := <-client.send
	assert.False(t, open, "send channel should be closed on unregister")
}
