package feedsync

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

// Config tunes the engine. Zero values fall back to the defaults.
type Config struct {
	PageSize         int
	DebounceInterval time.Duration
}

const defaultPageSize = 20

// Engine wires the feed synchronization components around one shared State:
// the Coordinator for mutations, the Pager for page loads, the Debouncer
// for search input and the Reconciler for the realtime stream. Construct
// one per session; Close tears everything down.
type Engine struct {
	store       Store
	state       *State
	guard       *Guard
	coordinator *Coordinator
	pager       *Pager
	debouncer   *Debouncer
	reconciler  *Reconciler
}

func NewEngine(store Store, source StreamSource, identity Identity, cfg Config) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultDebounceInterval
	}

	state := NewState(identity.CallerID())
	guard := NewGuard()
	pager := NewPager(store, state, cfg.PageSize)

	e := &Engine{
		state:       state,
		guard:       guard,
		coordinator: NewCoordinator(store, identity, state, guard),
		pager:       pager,
		reconciler:  NewReconciler(source, state),
	}
	e.debouncer = NewDebouncer(cfg.DebounceInterval, func(term string) {
		criteria := state.Criteria()
		criteria.Search = term
		// Promotion errors only mean the term was superseded or the load
		// failed; the next promotion or an explicit reload recovers.
		_ = pager.ResetAndLoad(context.Background(), criteria)
	})
	e.store = store
	return e
}

// Mutations exposes the mutation coordinator.
func (e *Engine) Mutations() *Coordinator { return e.coordinator }

// Pager exposes the pagination controller.
func (e *Engine) Pager() *Pager { return e.pager }

// Feed returns a copy of the materialized feed window.
func (e *Engine) Feed() models.FeedPage { return e.state.Feed() }

// Thread returns the open thread, if any.
func (e *Engine) Thread() (primitive.ObjectID, []models.Comment, bool) { return e.state.Thread() }

// Status reports the mutation state of one entity under one operation kind.
func (e *Engine) Status(kind OpKind, id string) ItemStatus { return e.state.Status(kind, id) }

// IsBusy reports whether a mutation of the given kind is in flight for id.
func (e *Engine) IsBusy(kind OpKind, id string) bool { return e.guard.IsBusy(kind, id) }

// Search feeds one input change into the debouncer. Only a value that
// survives the quiet interval becomes the active search term.
func (e *Engine) Search(term string) { e.debouncer.SetQuery(term) }

// OpenThread loads a post's comment tree and subscribes to its realtime
// stream, closing whichever thread was open before.
func (e *Engine) OpenThread(ctx context.Context, postID primitive.ObjectID) error {
	e.reconciler.Close()

	comments, err := e.store.ListComments(ctx, postID)
	if err != nil {
		return err
	}
	e.state.openThread(postID, comments)
	return e.reconciler.Open(ctx, postID)
}

// CloseThread unsubscribes and drops the thread view.
func (e *Engine) CloseThread() {
	e.reconciler.Close()
	e.state.closeThread()
}

// Close tears the engine down: pending searches are dropped, the
// outstanding page request cancelled and the stream subscription closed.
func (e *Engine) Close() {
	e.debouncer.Stop()
	e.pager.Cancel()
	e.reconciler.Close()
	e.state.closeThread()
}
