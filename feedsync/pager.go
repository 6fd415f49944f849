package feedsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/commonroom/commonroom_backend/models"
)

// Pager materializes the feed as an ever-growing, never-reordered window.
// Every page and search request goes through a single cancellation slot:
// issuing a new request first cancels whatever is outstanding, so only the
// most recently issued request's response can ever be applied. The
// superseded response is discarded even if its bytes already arrived —
// last-writer-wins by cancellation, not by timestamp.
type Pager struct {
	store    Store
	state    *State
	pageSize int

	mu     sync.Mutex
	cancel context.CancelFunc
	serial uint64
}

func NewPager(store Store, state *State, pageSize int) *Pager {
	return &Pager{store: store, state: state, pageSize: pageSize}
}

// begin claims the request slot: the outstanding request (if any) is
// cancelled and a fresh serial issued. Only the completion holding the
// current serial may apply its result.
func (p *Pager) begin(ctx context.Context) (context.Context, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.serial++
	reqCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	return reqCtx, p.serial
}

// current reports whether serial still owns the slot, releasing the slot's
// cancel func when it does.
func (p *Pager) current(serial uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.serial != serial {
		return false
	}
	p.cancel = nil
	return true
}

// LoadMore fetches the next page under the current criteria and appends it
// to the tail of the window. The page counter advances only after a
// successful response; a superseded or failed load leaves it untouched, so
// a retry requests the same page again.
func (p *Pager) LoadMore(ctx context.Context) error {
	feed := p.state.Feed()
	if feed.Page > 0 && !feed.HasMore {
		return nil
	}
	criteria := p.state.Criteria()
	next := feed.Page + 1

	reqCtx, serial := p.begin(ctx)
	posts, total, err := p.store.ListPosts(reqCtx, criteria, next, p.pageSize)
	if !p.current(serial) {
		return ErrSuperseded
	}
	if err != nil {
		return fmt.Errorf("load page %d: %w", next, err)
	}

	p.state.appendFeedPage(posts, next, total)
	return nil
}

// ResetAndLoad discards the materialized window, installs the new criteria
// and fetches a fresh first page. The in-flight request from before the
// reset is cancelled so a stale response cannot overwrite fresher state.
func (p *Pager) ResetAndLoad(ctx context.Context, criteria models.FeedCriteria) error {
	reqCtx, serial := p.begin(ctx)
	p.state.replaceFeed(criteria, nil, 0)

	posts, total, err := p.store.ListPosts(reqCtx, criteria, 1, p.pageSize)
	if !p.current(serial) {
		return ErrSuperseded
	}
	if err != nil {
		return fmt.Errorf("load first page: %w", err)
	}

	p.state.replaceFeed(criteria, posts, total)
	return nil
}

// Cancel aborts the outstanding request, if any. Used at teardown.
func (p *Pager) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.serial++
}
