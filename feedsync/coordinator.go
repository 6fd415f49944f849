package feedsync

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

// Coordinator executes user-initiated mutations local-first: the optimistic
// change is applied synchronously, the Store request dispatched, and the
// result reconciled. Every optimistic application has a matching rollback
// that runs on failure, so a torn view is never left visible. Re-entrant
// mutations for the same entity are refused through the Guard before
// anything is dispatched.
type Coordinator struct {
	store    Store
	identity Identity
	state    *State
	guard    *Guard
}

func NewCoordinator(store Store, identity Identity, state *State, guard *Guard) *Coordinator {
	return &Coordinator{store: store, identity: identity, state: state, guard: guard}
}

// ToggleLike flips the caller's like on a post. The flag and displayed
// count change before the round trip; on success the server-reported count
// replaces the local projection (concurrent toggles by other callers may
// have moved it), on failure the optimistic change is inverted exactly.
func (co *Coordinator) ToggleLike(ctx context.Context, postID primitive.ObjectID) error {
	id := postID.Hex()
	if !co.guard.TryAcquire(OpLike, id) {
		return ErrBusy
	}
	defer co.guard.Release(OpLike, id)

	snap, ok := co.state.optimisticToggleLike(postID)
	if !ok {
		return fmt.Errorf("%w: post %s is not in the feed", ErrValidation, id)
	}
	co.state.setStatus(OpLike, id, StatusPending)

	resp, err := co.store.ToggleLike(ctx, postID)
	if err != nil {
		co.state.rollbackToggleLike(postID, snap)
		co.state.setStatus(OpLike, id, StatusError)
		return fmt.Errorf("toggle like: %w", err)
	}

	co.state.confirmToggleLike(postID, resp.Liked, resp.LikeCount)
	co.state.setStatus(OpLike, id, StatusIdle)
	return nil
}

// PostComment creates a top-level comment. On success the authoritative
// comment tree is re-fetched rather than splicing the single item in, which
// keeps ordering and the count projection correct when other comments
// landed in between. On failure the caller keeps the draft (nothing was
// changed locally) and receives the error to surface.
func (co *Coordinator) PostComment(ctx context.Context, postID primitive.ObjectID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: comment content is empty", ErrValidation)
	}
	if co.identity.CallerID() == primitive.NilObjectID {
		return ErrUnauthorized
	}

	id := postID.Hex()
	if !co.guard.TryAcquire(OpComment, id) {
		return ErrBusy
	}
	defer co.guard.Release(OpComment, id)
	co.state.setStatus(OpComment, id, StatusPending)

	if _, err := co.store.CreateComment(ctx, postID, content); err != nil {
		co.state.setStatus(OpComment, id, StatusError)
		return fmt.Errorf("post comment: %w", err)
	}

	err := co.refreshThread(ctx, postID)
	co.state.setStatus(OpComment, id, StatusIdle)
	return err
}

// PostReply creates a reply under a top-level comment. Nesting is fixed at
// one level: a reply can never be created under another reply.
func (co *Coordinator) PostReply(ctx context.Context, parentID primitive.ObjectID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: reply content is empty", ErrValidation)
	}
	if co.identity.CallerID() == primitive.NilObjectID {
		return ErrUnauthorized
	}

	parent, enclosing := co.state.findComment(parentID)
	if parent == nil {
		return fmt.Errorf("%w: parent comment %s not found", ErrValidation, parentID.Hex())
	}
	if enclosing != nil || parent.ParentID != nil {
		return fmt.Errorf("%w: replies cannot be nested under replies", ErrValidation)
	}

	id := parentID.Hex()
	if !co.guard.TryAcquire(OpReply, id) {
		return ErrBusy
	}
	defer co.guard.Release(OpReply, id)
	co.state.setStatus(OpReply, id, StatusPending)

	if _, err := co.store.CreateReply(ctx, parentID, content); err != nil {
		co.state.setStatus(OpReply, id, StatusError)
		return fmt.Errorf("post reply: %w", err)
	}

	err := co.refreshThread(ctx, parent.PostID)
	co.state.setStatus(OpReply, id, StatusIdle)
	return err
}

// DeleteComment removes a top-level comment and, server-side, its replies.
// The item stays visible (marked deleting) until the Store confirms;
// removal is all-or-nothing.
func (co *Coordinator) DeleteComment(ctx context.Context, commentID primitive.ObjectID) error {
	comment, enclosing := co.state.findComment(commentID)
	if comment == nil {
		return fmt.Errorf("%w: comment %s not found", ErrValidation, commentID.Hex())
	}
	if enclosing != nil {
		return fmt.Errorf("%w: %s is a reply, use DeleteReply", ErrValidation, commentID.Hex())
	}
	if err := co.authorize(comment.UserID); err != nil {
		return err
	}

	id := commentID.Hex()
	if !co.guard.TryAcquire(OpDeleteComment, id) {
		return ErrBusy
	}
	defer co.guard.Release(OpDeleteComment, id)
	co.state.setStatus(OpDeleteComment, id, StatusPending)

	if err := co.store.DeleteComment(ctx, commentID); err != nil {
		co.state.setStatus(OpDeleteComment, id, StatusError)
		return fmt.Errorf("delete comment: %w", err)
	}

	err := co.refreshThread(ctx, comment.PostID)
	co.state.setStatus(OpDeleteComment, id, StatusIdle)
	return err
}

// DeleteReply removes a single reply.
func (co *Coordinator) DeleteReply(ctx context.Context, replyID primitive.ObjectID) error {
	reply, enclosing := co.state.findComment(replyID)
	if reply == nil || enclosing == nil {
		return fmt.Errorf("%w: reply %s not found", ErrValidation, replyID.Hex())
	}
	if err := co.authorize(reply.UserID); err != nil {
		return err
	}

	id := replyID.Hex()
	if !co.guard.TryAcquire(OpDeleteReply, id) {
		return ErrBusy
	}
	defer co.guard.Release(OpDeleteReply, id)
	co.state.setStatus(OpDeleteReply, id, StatusPending)

	if err := co.store.DeleteReply(ctx, replyID); err != nil {
		co.state.setStatus(OpDeleteReply, id, StatusError)
		return fmt.Errorf("delete reply: %w", err)
	}

	err := co.refreshThread(ctx, reply.PostID)
	co.state.setStatus(OpDeleteReply, id, StatusIdle)
	return err
}

// DeletePost removes a post. The server cascades comment, reply and like
// removal; locally the post leaves the feed only on confirmation.
func (co *Coordinator) DeletePost(ctx context.Context, postID primitive.ObjectID) error {
	post, ok := co.state.postByID(postID)
	if !ok {
		return fmt.Errorf("%w: post %s is not in the feed", ErrValidation, postID.Hex())
	}
	if err := co.authorize(post.UserID); err != nil {
		return err
	}

	id := postID.Hex()
	if !co.guard.TryAcquire(OpDeletePost, id) {
		return ErrBusy
	}
	defer co.guard.Release(OpDeletePost, id)
	co.state.setStatus(OpDeletePost, id, StatusPending)

	if err := co.store.DeletePost(ctx, postID); err != nil {
		co.state.setStatus(OpDeletePost, id, StatusError)
		return fmt.Errorf("delete post: %w", err)
	}

	co.state.removePost(postID)
	co.state.setStatus(OpDeletePost, id, StatusIdle)
	return nil
}

// CreatePost publishes a new post. The feed is paginated newest-first, so
// the post shows up on the next reset rather than being spliced in.
func (co *Coordinator) CreatePost(ctx context.Context, req models.PostRequest) (*models.Post, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: post content is empty", ErrValidation)
	}
	if co.identity.CallerID() == primitive.NilObjectID {
		return nil, ErrUnauthorized
	}

	post, err := co.store.CreatePost(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// refreshThread re-fetches the authoritative comment tree after any
// create or delete and recomputes the count projection from it. One
// strategy for both directions; no arithmetic shortcuts that can drift
// under concurrent writers.
func (co *Coordinator) refreshThread(ctx context.Context, postID primitive.ObjectID) error {
	comments, err := co.store.ListComments(ctx, postID)
	if err != nil {
		return fmt.Errorf("refresh comments: %w", err)
	}
	co.state.installThreadFetch(postID, comments)
	return nil
}

// authorize enforces the author-or-admin rule before a delete is
// dispatched. The Store applies the same rule authoritatively; this check
// only prevents doomed requests.
func (co *Coordinator) authorize(authorID primitive.ObjectID) error {
	if co.identity.Role() == "admin" {
		return nil
	}
	if co.identity.CallerID() == authorID {
		return nil
	}
	return ErrUnauthorized
}
