package feedsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

func threadState(t *testing.T, s *State) []models.Comment {
	t.Helper()
	_, comments, ok := s.Thread()
	require.True(t, ok)
	return comments
}

func TestMergeAppendsNewCommentsAndReplies(t *testing.T) {
	existingID := primitive.NewObjectID()
	state := NewState(testSelf)
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 0, false)}, 1)
	state.openThread(testPostID, []models.Comment{seedComment(existingID, testPostID, testOther, nil)})

	newTop := seedComment(primitive.NewObjectID(), testPostID, testOther, nil)
	newReply := seedComment(primitive.NewObjectID(), testPostID, testOther, &existingID)
	state.applyMerge(EventBatch{PostID: testPostID, Comments: []models.Comment{newTop, newReply}})

	comments := threadState(t, state)
	require.Len(t, comments, 2)
	assert.Equal(t, existingID, comments[0].ID)
	require.Len(t, comments[0].Replies, 1)
	assert.Equal(t, newReply.ID, comments[0].Replies[0].ID)
	assert.Equal(t, newTop.ID, comments[1].ID)

	post, _ := state.postByID(testPostID)
	assert.Equal(t, 3, post.CommentCount, "feed mirror recomputed from the merged tree")
}

func TestMergeIsIdempotent(t *testing.T) {
	existingID := primitive.NewObjectID()
	state := NewState(testSelf)
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 0, false)}, 1)
	state.openThread(testPostID, []models.Comment{seedComment(existingID, testPostID, testOther, nil)})

	batch := EventBatch{
		PostID: testPostID,
		Comments: []models.Comment{
			seedComment(primitive.NewObjectID(), testPostID, testOther, nil),
			seedComment(primitive.NewObjectID(), testPostID, testOther, &existingID),
		},
		Likes: []models.Like{{PostID: testPostID, UserID: testOther}},
	}

	state.applyMerge(batch)
	once := threadState(t, state)
	postOnce, _ := state.postByID(testPostID)

	// Applying the same batch again must change nothing.
	state.applyMerge(batch)
	twice := threadState(t, state)
	postTwice, _ := state.postByID(testPostID)

	assert.Equal(t, once, twice)
	assert.Equal(t, postOnce.CommentCount, postTwice.CommentCount)
	assert.Equal(t, postOnce.LikeCount, postTwice.LikeCount)
}

func TestMergeIsCommutativeOverOverlappingBatches(t *testing.T) {
	existingID := primitive.NewObjectID()
	shared := seedComment(primitive.NewObjectID(), testPostID, testOther, nil)
	onlyA := seedComment(primitive.NewObjectID(), testPostID, testOther, &existingID)
	onlyB := seedComment(primitive.NewObjectID(), testPostID, testOther, nil)

	batchA := EventBatch{PostID: testPostID, Comments: []models.Comment{shared, onlyA}}
	batchB := EventBatch{PostID: testPostID, Comments: []models.Comment{shared, onlyB}}

	build := func(first, second EventBatch) ([]models.Comment, int) {
		s := NewState(testSelf)
		s.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 0, false)}, 1)
		s.openThread(testPostID, []models.Comment{seedComment(existingID, testPostID, testOther, nil)})
		s.applyMerge(first)
		s.applyMerge(second)
		_, comments, _ := s.Thread()
		p, _ := s.postByID(testPostID)
		return comments, p.CommentCount
	}

	ab, countAB := build(batchA, batchB)
	ba, countBA := build(batchB, batchA)

	// Same id set either way; ordering of the two appended top-level
	// comments differs by arrival, so compare as sets.
	assert.Equal(t, countAB, countBA)
	assert.ElementsMatch(t, commentIDs(ab), commentIDs(ba))
}

func commentIDs(comments []models.Comment) []string {
	var ids []string
	for _, c := range comments {
		ids = append(ids, c.ID.Hex())
		for _, r := range c.Replies {
			ids = append(ids, r.ID.Hex())
		}
	}
	return ids
}

func TestMergeDropsUnknownParent(t *testing.T) {
	state := NewState(testSelf)
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 0, false)}, 1)
	state.openThread(testPostID, []models.Comment{seedComment(primitive.NewObjectID(), testPostID, testOther, nil)})

	ghostParent := primitive.NewObjectID()
	state.applyMerge(EventBatch{
		PostID:   testPostID,
		Comments: []models.Comment{seedComment(primitive.NewObjectID(), testPostID, testOther, &ghostParent)},
	})

	// The orphan is dropped rather than guessed into place.
	comments := threadState(t, state)
	require.Len(t, comments, 1)
	assert.Empty(t, comments[0].Replies)
	post, _ := state.postByID(testPostID)
	assert.Equal(t, 1, post.CommentCount)
}

func TestMergeLikesNeverDoubleCountOptimisticSelf(t *testing.T) {
	state := NewState(testSelf)
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 5, false)}, 1)

	// The caller's own optimistic like is pending under a temp id.
	_, ok := state.optimisticToggleLike(testPostID)
	require.True(t, ok)
	post, _ := state.postByID(testPostID)
	require.Equal(t, int64(6), post.LikeCount)

	// The stream then reports the server-authoritative record of that
	// same like. Union over (post, caller) makes it a no-op.
	state.applyMerge(EventBatch{PostID: testPostID, Likes: []models.Like{
		{ObjectID: primitive.NewObjectID(), PostID: testPostID, UserID: testSelf},
	}})

	post, _ = state.postByID(testPostID)
	assert.Equal(t, int64(6), post.LikeCount, "a temp like and its confirmed record count once")
	assert.True(t, post.Liked)
}

func TestMergeLikesFromOtherCallers(t *testing.T) {
	state := NewState(testSelf)
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 2, false)}, 1)

	liker := primitive.NewObjectID()
	batch := EventBatch{PostID: testPostID, Likes: []models.Like{
		{PostID: testPostID, UserID: liker},
		{PostID: testPostID, UserID: liker}, // duplicate inside one batch
	}}
	state.applyMerge(batch)
	state.applyMerge(batch)

	post, _ := state.postByID(testPostID)
	assert.Equal(t, int64(3), post.LikeCount)
	assert.False(t, post.Liked, "someone else's like does not flip the caller's flag")
}

func TestMergeScenarioReplyArrivesViaStream(t *testing.T) {
	// P1 starts empty; the caller comments, then a second caller's reply
	// arrives over the stream.
	commentID := primitive.NewObjectID()
	state := NewState(testSelf)
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 0, false)}, 1)
	state.openThread(testPostID, nil)

	state.installThreadFetch(testPostID, []models.Comment{seedComment(commentID, testPostID, testSelf, nil)})
	post, _ := state.postByID(testPostID)
	require.Equal(t, 1, post.CommentCount)

	state.applyMerge(EventBatch{PostID: testPostID, Comments: []models.Comment{
		seedComment(primitive.NewObjectID(), testPostID, testOther, &commentID),
	}})

	post, _ = state.postByID(testPostID)
	assert.Equal(t, 2, post.CommentCount)
}

func TestReconcilerOneSubscriptionPerThread(t *testing.T) {
	source := newFakeSource()
	state := NewState(testSelf)
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 0, false)}, 1)
	state.openThread(testPostID, nil)

	r := NewReconciler(source, state)
	require.NoError(t, r.Open(context.Background(), testPostID))
	assert.Equal(t, 1, source.subbed)

	// A delivered batch reaches the reducer.
	source.ch <- EventBatch{PostID: testPostID, Comments: []models.Comment{
		seedComment(primitive.NewObjectID(), testPostID, testOther, nil),
	}}
	require.True(t, waitFor(time.Second, func() bool {
		_, comments, _ := state.Thread()
		return len(comments) == 1
	}))

	// Opening another thread tears the first subscription down before the
	// second is established: never two channels open at once.
	firstCtx := source.lastCtx
	otherPost := primitive.NewObjectID()
	require.NoError(t, r.Open(context.Background(), otherPost))
	assert.Equal(t, 2, source.subbed)
	assert.Error(t, firstCtx.Err(), "first subscription context must be cancelled")

	r.Close()
}

func TestReconcilerCloseStopsMerging(t *testing.T) {
	source := newFakeSource()
	state := NewState(testSelf)
	state.openThread(testPostID, nil)

	r := NewReconciler(source, state)
	require.NoError(t, r.Open(context.Background(), testPostID))
	r.Close()

	// After Close the consumer is drained; a late send has nowhere to go.
	select {
	case source.ch <- EventBatch{PostID: testPostID}:
		t.Fatal("subscription still consuming after Close")
	case <-time.After(50 * time.Millisecond):
	}
	_, comments, _ := state.Thread()
	assert.Empty(t, comments)
}
