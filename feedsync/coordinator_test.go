package feedsync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

func newTestCoordinator(store Store, role string) (*Coordinator, *State) {
	state := NewState(testSelf)
	guard := NewGuard()
	return NewCoordinator(store, testIdentity(role), state, guard), state
}

func TestToggleLikeAppliesOptimisticallyThenConfirms(t *testing.T) {
	var seenDuringCall models.Post
	state := NewState(testSelf)
	store := &fakeStore{
		toggleLike: func(ctx context.Context, postID primitive.ObjectID) (*models.ToggleLikeResponse, error) {
			// The flag and count change synchronously with the optimistic
			// step, before the round trip completes.
			feed := state.Feed()
			seenDuringCall = feed.Posts[0]
			return &models.ToggleLikeResponse{Liked: true, LikeCount: 9}, nil
		},
	}
	co := NewCoordinator(store, testIdentity("user"), state, NewGuard())
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 5, false)}, 1)

	require.NoError(t, co.ToggleLike(context.Background(), testPostID))

	assert.True(t, seenDuringCall.Liked)
	assert.Equal(t, int64(6), seenDuringCall.LikeCount, "optimistic count is a local increment")

	after, _ := state.postByID(testPostID)
	assert.True(t, after.Liked)
	assert.Equal(t, int64(9), after.LikeCount, "server count is authoritative, not the local increment")
	assert.Equal(t, StatusIdle, state.Status(OpLike, testPostID.Hex()))
}

func TestToggleLikeRollsBackExactlyOnFailure(t *testing.T) {
	store := &fakeStore{
		toggleLike: func(ctx context.Context, postID primitive.ObjectID) (*models.ToggleLikeResponse, error) {
			return nil, errors.New("network down")
		},
	}
	co, state := newTestCoordinator(store, "user")
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 5, false)}, 1)

	err := co.ToggleLike(context.Background(), testPostID)
	require.Error(t, err)

	after, _ := state.postByID(testPostID)
	assert.False(t, after.Liked, "liked flag reverts to its pre-call value")
	assert.Equal(t, int64(5), after.LikeCount, "count reverts to its pre-call value")
	assert.Empty(t, state.likes[testPostID.Hex()], "temporary like is removed")
	assert.Equal(t, StatusError, state.Status(OpLike, testPostID.Hex()))
}

func TestToggleLikeUnlikeRollbackReinsertsLike(t *testing.T) {
	store := &fakeStore{
		toggleLike: func(ctx context.Context, postID primitive.ObjectID) (*models.ToggleLikeResponse, error) {
			return nil, errors.New("boom")
		},
	}
	co, state := newTestCoordinator(store, "user")
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 3, true)}, 1)

	require.Error(t, co.ToggleLike(context.Background(), testPostID))

	after, _ := state.postByID(testPostID)
	assert.True(t, after.Liked)
	assert.Equal(t, int64(3), after.LikeCount)
	_, mine := state.likes[testPostID.Hex()][testSelf.Hex()]
	assert.True(t, mine, "removed like entry is re-inserted on rollback")
}

func TestToggleLikeAtMostOneInFlight(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	store := &fakeStore{
		toggleLike: func(ctx context.Context, postID primitive.ObjectID) (*models.ToggleLikeResponse, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return &models.ToggleLikeResponse{Liked: true, LikeCount: 1}, nil
		},
	}
	co, state := newTestCoordinator(store, "user")
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 0, false)}, 1)

	done := make(chan error, 1)
	go func() { done <- co.ToggleLike(context.Background(), testPostID) }()

	require.True(t, waitFor(time.Second, func() bool { return atomic.LoadInt32(&calls) == 1 }))

	// Second toggle while the first is outstanding: refused before any
	// store call is made.
	assert.ErrorIs(t, co.ToggleLike(context.Background(), testPostID), ErrBusy)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "exactly one store call until the first completes")

	close(release)
	require.NoError(t, <-done)

	// After completion the entity is free again.
	store.toggleLike = func(ctx context.Context, postID primitive.ObjectID) (*models.ToggleLikeResponse, error) {
		return &models.ToggleLikeResponse{Liked: false, LikeCount: 0}, nil
	}
	assert.NoError(t, co.ToggleLike(context.Background(), testPostID))
}

func TestPostCommentRefetchesAuthoritativeTree(t *testing.T) {
	commentID := primitive.NewObjectID()
	store := &fakeStore{
		createComment: func(ctx context.Context, postID primitive.ObjectID, content string) (*models.Comment, error) {
			return &models.Comment{ID: commentID, PostID: postID, Content: content}, nil
		},
		listComments: func(ctx context.Context, postID primitive.ObjectID) ([]models.Comment, error) {
			return []models.Comment{seedComment(commentID, postID, testSelf, nil)}, nil
		},
	}
	co, state := newTestCoordinator(store, "user")
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 0, false)}, 1)
	state.openThread(testPostID, nil)

	require.NoError(t, co.PostComment(context.Background(), testPostID, "hi"))

	_, comments, ok := state.Thread()
	require.True(t, ok)
	require.Len(t, comments, 1)
	post, _ := state.postByID(testPostID)
	assert.Equal(t, 1, post.CommentCount, "count recomputed from the re-fetched tree")
}

func TestPostCommentValidation(t *testing.T) {
	called := false
	store := &fakeStore{
		createComment: func(ctx context.Context, postID primitive.ObjectID, content string) (*models.Comment, error) {
			called = true
			return nil, nil
		},
	}
	co, _ := newTestCoordinator(store, "user")

	err := co.PostComment(context.Background(), testPostID, "   ")
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, called, "validation failures are rejected before any request")
}

func TestPostReplyDepthInvariant(t *testing.T) {
	parentID := primitive.NewObjectID()
	replyID := primitive.NewObjectID()
	store := &fakeStore{}
	co, state := newTestCoordinator(store, "user")

	parent := seedComment(parentID, testPostID, testOther, nil)
	parent.Replies = []models.Comment{seedComment(replyID, testPostID, testOther, &parentID)}
	state.openThread(testPostID, []models.Comment{parent})

	// Replying to a reply must be refused locally; nesting never exceeds
	// one level.
	err := co.PostReply(context.Background(), replyID, "nested")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeleteCommentAuthorization(t *testing.T) {
	commentID := primitive.NewObjectID()
	called := false
	store := &fakeStore{
		deleteComment: func(ctx context.Context, id primitive.ObjectID) error {
			called = true
			return nil
		},
	}

	// Not the author, not an admin: never dispatched.
	co, state := newTestCoordinator(store, "user")
	state.openThread(testPostID, []models.Comment{seedComment(commentID, testPostID, testOther, nil)})
	assert.ErrorIs(t, co.DeleteComment(context.Background(), commentID), ErrUnauthorized)
	assert.False(t, called)
}

func TestDeleteCommentAdminOverride(t *testing.T) {
	commentID := primitive.NewObjectID()
	store := &fakeStore{
		deleteComment: func(ctx context.Context, id primitive.ObjectID) error { return nil },
		listComments: func(ctx context.Context, postID primitive.ObjectID) ([]models.Comment, error) {
			return nil, nil
		},
	}
	co, state := newTestCoordinator(store, "admin")
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testOther, 0, false)}, 1)
	state.openThread(testPostID, []models.Comment{seedComment(commentID, testPostID, testOther, nil)})

	require.NoError(t, co.DeleteComment(context.Background(), commentID))

	_, comments, _ := state.Thread()
	assert.Empty(t, comments)
	post, _ := state.postByID(testPostID)
	assert.Equal(t, 0, post.CommentCount)
}

func TestDeleteCommentFailureKeepsItemVisible(t *testing.T) {
	commentID := primitive.NewObjectID()
	store := &fakeStore{
		deleteComment: func(ctx context.Context, id primitive.ObjectID) error {
			return errors.New("store unavailable")
		},
	}
	co, state := newTestCoordinator(store, "user")
	state.openThread(testPostID, []models.Comment{seedComment(commentID, testPostID, testSelf, nil)})

	require.Error(t, co.DeleteComment(context.Background(), commentID))

	// A failed server-side delete is not reflected locally.
	_, comments, _ := state.Thread()
	require.Len(t, comments, 1)
	assert.Equal(t, StatusError, state.Status(OpDeleteComment, commentID.Hex()))
}

func TestDeletePostRemovedOnlyOnConfirmation(t *testing.T) {
	store := &fakeStore{
		deletePost: func(ctx context.Context, id primitive.ObjectID) error { return nil },
	}
	co, state := newTestCoordinator(store, "user")
	state.replaceFeed(models.FeedCriteria{}, []models.Post{seedPost(testPostID, testSelf, 0, false)}, 1)

	require.NoError(t, co.DeletePost(context.Background(), testPostID))

	feed := state.Feed()
	assert.Empty(t, feed.Posts)
	assert.Equal(t, int64(0), feed.TotalCount)
}

func TestCreatePostValidation(t *testing.T) {
	co, _ := newTestCoordinator(&fakeStore{}, "user")
	_, err := co.CreatePost(context.Background(), models.PostRequest{Content: "  "})
	assert.ErrorIs(t, err, ErrValidation)
}
