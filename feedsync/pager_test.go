package feedsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

func makePosts(n int) []models.Post {
	posts := make([]models.Post, n)
	for i := range posts {
		posts[i] = seedPost(primitive.NewObjectID(), testOther, 0, false)
	}
	return posts
}

func TestLoadMoreAppendsAndAdvances(t *testing.T) {
	pages := map[int][]models.Post{1: makePosts(2), 2: makePosts(2)}
	store := &fakeStore{
		listPosts: func(ctx context.Context, criteria models.FeedCriteria, page, pageSize int) ([]models.Post, int64, error) {
			return pages[page], 3, nil
		},
	}
	state := NewState(testSelf)
	pager := NewPager(store, state, 2)

	require.NoError(t, pager.LoadMore(context.Background()))
	feed := state.Feed()
	assert.Equal(t, 1, feed.Page)
	assert.Len(t, feed.Posts, 2)
	assert.True(t, feed.HasMore, "2 of 3 materialized")

	require.NoError(t, pager.LoadMore(context.Background()))
	feed = state.Feed()
	assert.Equal(t, 2, feed.Page)
	assert.Len(t, feed.Posts, 4)
	assert.False(t, feed.HasMore, "materialized length has reached the total")

	// With nothing more available, LoadMore is a no-op.
	require.NoError(t, pager.LoadMore(context.Background()))
	assert.Len(t, state.Feed().Posts, 4)
}

func TestStaleSearchResponseIsDiscarded(t *testing.T) {
	resultsA := makePosts(1)
	resultsB := makePosts(1)
	blockA := make(chan struct{})
	store := &fakeStore{
		listPosts: func(ctx context.Context, criteria models.FeedCriteria, page, pageSize int) ([]models.Post, int64, error) {
			if criteria.Search == "A" {
				// A resolves only after B has already been applied.
				select {
				case <-blockA:
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				}
				return resultsA, 1, nil
			}
			return resultsB, 1, nil
		},
	}
	state := NewState(testSelf)
	pager := NewPager(store, state, 10)

	errA := make(chan error, 1)
	go func() {
		errA <- pager.ResetAndLoad(context.Background(), models.FeedCriteria{Search: "A"})
	}()
	// Give A's request time to claim the slot before B supersedes it.
	require.True(t, waitFor(time.Second, func() bool { return state.Criteria().Search == "A" }))

	require.NoError(t, pager.ResetAndLoad(context.Background(), models.FeedCriteria{Search: "B"}))
	close(blockA)

	assert.ErrorIs(t, <-errA, ErrSuperseded)

	feed := state.Feed()
	require.Len(t, feed.Posts, 1)
	assert.Equal(t, resultsB[0].ID, feed.Posts[0].ID, "only the most recent request's result is reflected")
	assert.Equal(t, "B", state.Criteria().Search)
}

func TestDoubleLoadMoreAppendsOnePageSet(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	page2 := makePosts(2)

	store := &fakeStore{
		listPosts: func(ctx context.Context, criteria models.FeedCriteria, page, pageSize int) ([]models.Post, int64, error) {
			if page == 1 {
				return makePosts(2), 6, nil
			}
			mu.Lock()
			inFlight++
			mu.Unlock()
			started <- struct{}{}
			select {
			case <-release:
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
			return page2, 6, nil
		},
	}
	state := NewState(testSelf)
	pager := NewPager(store, state, 2)
	require.NoError(t, pager.LoadMore(context.Background()))

	// Double-click "load more": two page-2 requests in quick succession.
	errs := make(chan error, 2)
	go func() { errs <- pager.LoadMore(context.Background()) }()
	<-started
	go func() { errs <- pager.LoadMore(context.Background()) }()
	<-started
	close(release)

	first, second := <-errs, <-errs
	superseded := 0
	for _, err := range []error{first, second} {
		if err != nil {
			assert.ErrorIs(t, err, ErrSuperseded)
			superseded++
		}
	}
	assert.Equal(t, 1, superseded, "exactly one of the two loads is discarded")

	feed := state.Feed()
	assert.Len(t, feed.Posts, 4, "page 2 appears once, not twice")
	assert.Equal(t, 2, feed.Page)
}

func TestResetCancelsInFlightPageRequest(t *testing.T) {
	sawCancel := make(chan struct{})
	store := &fakeStore{
		listPosts: func(ctx context.Context, criteria models.FeedCriteria, page, pageSize int) ([]models.Post, int64, error) {
			if criteria.Search == "" {
				<-ctx.Done()
				close(sawCancel)
				return nil, 0, ctx.Err()
			}
			return makePosts(1), 1, nil
		},
	}
	state := NewState(testSelf)
	pager := NewPager(store, state, 10)

	go func() { _ = pager.LoadMore(context.Background()) }()
	require.True(t, waitFor(time.Second, func() bool {
		return pagerHasSlot(pager)
	}))

	require.NoError(t, pager.ResetAndLoad(context.Background(), models.FeedCriteria{Search: "x"}))

	select {
	case <-sawCancel:
	case <-time.After(time.Second):
		t.Fatal("the pre-reset request was not cancelled")
	}
}

func pagerHasSlot(p *Pager) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
