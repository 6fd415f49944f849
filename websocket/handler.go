package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleStream upgrades the request and attaches the caller to the post's
// stream until the connection drops. The caller is already authenticated
// by the route; the stream itself is read-only, inbound messages are
// discarded.
func HandleStream(c echo.Context, hub *Hub, userID, postID primitive.ObjectID) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		UserID: userID,
		PostID: postID,
		Conn:   conn,
		send:   make(chan EventBatch, 16),
	}

	hub.register <- client

	go func() {
		for batch := range client.send {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(batch); err != nil {
				break
			}
		}
		conn.Close()
	}()

	// Reader loop exists only to detect disconnects.
	go func() {
		defer func() {
			hub.unregister <- client
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return nil
}
