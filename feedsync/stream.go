package feedsync

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reconciler owns the realtime subscription for the thread the user is
// looking at. Exactly one channel is open per actively viewed post, zero
// otherwise: opening a new thread tears the previous subscription down
// first, and there is no window with two streams open. Every inbound batch
// is handed to the State's single merge reducer; the Reconciler itself
// keeps no mutable view of the data, which is what keeps the merge free of
// captured-variable staleness.
type Reconciler struct {
	source StreamSource
	state  *State

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(source StreamSource, state *State) *Reconciler {
	return &Reconciler{source: source, state: state}
}

// Open subscribes to a post's event stream after closing any previous
// subscription. The consuming goroutine exits when the source closes the
// channel, either on cancellation or on a transport error; errors are
// logged by the source and not retried — the caller re-opens on the next
// thread visit.
func (r *Reconciler) Open(ctx context.Context, postID primitive.ObjectID) error {
	r.Close()

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := r.source.Subscribe(subCtx, postID)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		for batch := range ch {
			if batch.PostID != postID {
				continue
			}
			r.state.applyMerge(batch)
		}
	}()
	return nil
}

// Close cancels the current subscription and waits for the consumer to
// drain, so no merge is applied after Close returns.
func (r *Reconciler) Close() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
