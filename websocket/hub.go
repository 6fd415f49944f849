package websocket

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

// EventBatch is one frame of a post's realtime stream: the comments and
// likes created since the previous frame. Frames are safe to re-deliver;
// subscribers merge by id.
type EventBatch struct {
	PostID   primitive.ObjectID `json:"postId"`
	Comments []models.Comment   `json:"comments,omitempty"`
	Likes    []models.Like      `json:"likes,omitempty"`
}

// Client is one websocket subscriber to a single post's stream.
type Client struct {
	UserID primitive.ObjectID
	PostID primitive.ObjectID
	Conn   *websocket.Conn

	// send is drained by the client's writer goroutine; a full buffer
	// drops the client rather than blocking the hub.
	send chan EventBatch
}

// Hub maintains the set of active stream subscribers, grouped by post.
type Hub struct {
	topics     map[primitive.ObjectID]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		topics:     make(map[primitive.ObjectID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.topics[client.PostID] == nil {
				h.topics[client.PostID] = make(map[*Client]bool)
			}
			h.topics[client.PostID][client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if subs, ok := h.topics[client.PostID]; ok {
				if subs[client] {
					delete(subs, client)
					close(client.send)
				}
				if len(subs) == 0 {
					delete(h.topics, client.PostID)
				}
			}
			if client.Conn != nil {
				client.Conn.Close()
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToPost queues a frame for every subscriber of the post. Slow
// clients whose buffers are full miss the frame; they catch up on their
// next re-open since the stream carries no history anyway.
func (h *Hub) BroadcastToPost(postID primitive.ObjectID, batch EventBatch) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.topics[postID] {
		select {
		case client.send <- batch:
		default:
			log.Printf("websocket: dropping frame for slow client on post %s", postID.Hex())
		}
	}
}

// SubscriberCount reports the number of open subscriptions on a post.
func (h *Hub) SubscriberCount(postID primitive.ObjectID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[postID])
}
