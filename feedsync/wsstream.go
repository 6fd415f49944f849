package feedsync

import (
	"context"
	"log"
	"net/url"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WSStream implements StreamSource over the backend's per-post websocket
// endpoint. One connection per subscription; the connection is closed when
// the subscription context is cancelled or the transport fails. Failures
// are logged and not retried here.
type WSStream struct {
	baseURL string // ws:// or wss:// host, no path
	token   string
	dialer  *websocket.Dialer
}

func NewWSStream(baseURL, token string) *WSStream {
	return &WSStream{baseURL: baseURL, token: token, dialer: websocket.DefaultDialer}
}

func (w *WSStream) Subscribe(ctx context.Context, postID primitive.ObjectID) (<-chan EventBatch, error) {
	endpoint := w.baseURL + "/api/posts/" + postID.Hex() + "/stream?token=" + url.QueryEscape(w.token)

	conn, _, err := w.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	ch := make(chan EventBatch)

	// Close the connection when the subscription is cancelled; ReadJSON
	// then fails and the reader exits.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		defer close(ch)
		defer conn.Close()
		for {
			var batch EventBatch
			if err := conn.ReadJSON(&batch); err != nil {
				if ctx.Err() == nil {
					log.Printf("feedsync: stream for post %s closed: %v", postID.Hex(), err)
				}
				return
			}
			select {
			case ch <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}
