package feedsync

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

// Store is the authoritative backend the engine reconciles against. The
// production implementation talks to the HTTP API (see HTTPStore); tests
// use an in-memory fake.
type Store interface {
	ListPosts(ctx context.Context, criteria models.FeedCriteria, page, pageSize int) ([]models.Post, int64, error)
	CreatePost(ctx context.Context, req models.PostRequest) (*models.Post, error)
	DeletePost(ctx context.Context, id primitive.ObjectID) error

	// ToggleLike flips the caller's like on a post. The returned count is
	// authoritative; concurrent toggles by other callers may have moved it
	// past a local increment or decrement.
	ToggleLike(ctx context.Context, postID primitive.ObjectID) (*models.ToggleLikeResponse, error)

	// ListComments returns the post's top-level comments with their
	// replies nested one level deep.
	ListComments(ctx context.Context, postID primitive.ObjectID) ([]models.Comment, error)
	CreateComment(ctx context.Context, postID primitive.ObjectID, content string) (*models.Comment, error)
	CreateReply(ctx context.Context, parentID primitive.ObjectID, content string) (*models.Comment, error)
	DeleteComment(ctx context.Context, id primitive.ObjectID) error
	DeleteReply(ctx context.Context, id primitive.ObjectID) error
}

// EventBatch is one frame of the realtime stream: comments and likes on a
// single post newly observed by the server since the last frame.
type EventBatch struct {
	PostID   primitive.ObjectID `json:"postId"`
	Comments []models.Comment   `json:"comments,omitempty"`
	Likes    []models.Like      `json:"likes,omitempty"`
}

// StreamSource delivers per-post event batches. Subscribe returns a channel
// that is closed when ctx is cancelled or the transport fails; a transport
// failure is logged by the source and not retried here. At most one
// subscription is open per engine at any time (enforced by the Reconciler).
type StreamSource interface {
	Subscribe(ctx context.Context, postID primitive.ObjectID) (<-chan EventBatch, error)
}

// Identity supplies the current caller. It decides whether mutation
// affordances are offered and populates author fields on new entities; the
// server re-validates every mutation regardless.
type Identity interface {
	CallerID() primitive.ObjectID
	CallerName() string
	Role() string // "user" or "admin"
}

// StaticIdentity is an Identity with fixed values, handy for wiring and
// tests.
type StaticIdentity struct {
	ID   primitive.ObjectID
	Name string
	Rol  string
}

func (s StaticIdentity) CallerID() primitive.ObjectID { return s.ID }
func (s StaticIdentity) CallerName() string           { return s.Name }
func (s StaticIdentity) Role() string                 { return s.Rol }
