package feedsync

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

// fakeStore implements Store with overridable function fields. Unset
// operations fail loudly so a test cannot silently hit the wrong path.
type fakeStore struct {
	listPosts     func(ctx context.Context, criteria models.FeedCriteria, page, pageSize int) ([]models.Post, int64, error)
	createPost    func(ctx context.Context, req models.PostRequest) (*models.Post, error)
	deletePost    func(ctx context.Context, id primitive.ObjectID) error
	toggleLike    func(ctx context.Context, postID primitive.ObjectID) (*models.ToggleLikeResponse, error)
	listComments  func(ctx context.Context, postID primitive.ObjectID) ([]models.Comment, error)
	createComment func(ctx context.Context, postID primitive.ObjectID, content string) (*models.Comment, error)
	createReply   func(ctx context.Context, parentID primitive.ObjectID, content string) (*models.Comment, error)
	deleteComment func(ctx context.Context, id primitive.ObjectID) error
	deleteReply   func(ctx context.Context, id primitive.ObjectID) error
}

func (f *fakeStore) ListPosts(ctx context.Context, criteria models.FeedCriteria, page, pageSize int) ([]models.Post, int64, error) {
	if f.listPosts == nil {
		panic("fakeStore: ListPosts not stubbed")
	}
	return f.listPosts(ctx, criteria, page, pageSize)
}

func (f *fakeStore) CreatePost(ctx context.Context, req models.PostRequest) (*models.Post, error) {
	if f.createPost == nil {
		panic("fakeStore: CreatePost not stubbed")
	}
	return f.createPost(ctx, req)
}

func (f *fakeStore) DeletePost(ctx context.Context, id primitive.ObjectID) error {
	if f.deletePost == nil {
		panic("fakeStore: DeletePost not stubbed")
	}
	return f.deletePost(ctx, id)
}

func (f *fakeStore) ToggleLike(ctx context.Context, postID primitive.ObjectID) (*models.ToggleLikeResponse, error) {
	if f.toggleLike == nil {
		panic("fakeStore: ToggleLike not stubbed")
	}
	return f.toggleLike(ctx, postID)
}

func (f *fakeStore) ListComments(ctx context.Context, postID primitive.ObjectID) ([]models.Comment, error) {
	if f.listComments == nil {
		panic("fakeStore: ListComments not stubbed")
	}
	return f.listComments(ctx, postID)
}

func (f *fakeStore) CreateComment(ctx context.Context, postID primitive.ObjectID, content string) (*models.Comment, error) {
	if f.createComment == nil {
		panic("fakeStore: CreateComment not stubbed")
	}
	return f.createComment(ctx, postID, content)
}

func (f *fakeStore) CreateReply(ctx context.Context, parentID primitive.ObjectID, content string) (*models.Comment, error) {
	if f.createReply == nil {
		panic("fakeStore: CreateReply not stubbed")
	}
	return f.createReply(ctx, parentID, content)
}

func (f *fakeStore) DeleteComment(ctx context.Context, id primitive.ObjectID) error {
	if f.deleteComment == nil {
		panic("fakeStore: DeleteComment not stubbed")
	}
	return f.deleteComment(ctx, id)
}

func (f *fakeStore) DeleteReply(ctx context.Context, id primitive.ObjectID) error {
	if f.deleteReply == nil {
		panic("fakeStore: DeleteReply not stubbed")
	}
	return f.deleteReply(ctx, id)
}

// fakeSource implements StreamSource over a caller-controlled channel.
type fakeSource struct {
	ch      chan EventBatch
	subErr  error
	subbed  int
	lastCtx context.Context
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan EventBatch)}
}

func (f *fakeSource) Subscribe(ctx context.Context, postID primitive.ObjectID) (<-chan EventBatch, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.subbed++
	f.lastCtx = ctx
	out := make(chan EventBatch)
	go func() {
		defer close(out)
		for {
			select {
			case batch, ok := <-f.ch:
				if !ok {
					return
				}
				select {
				case out <- batch:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var (
	testSelf   = primitive.NewObjectID()
	testOther  = primitive.NewObjectID()
	testPostID = primitive.NewObjectID()
)

func testIdentity(role string) StaticIdentity {
	return StaticIdentity{ID: testSelf, Name: "Test User", Rol: role}
}

func seedPost(id primitive.ObjectID, author primitive.ObjectID, likeCount int64, liked bool) models.Post {
	return models.Post{
		ID:         id,
		UserID:     author,
		AuthorName: "Author",
		Content:    "hello world",
		LikeCount:  likeCount,
		Liked:      liked,
		CreatedAt:  time.Now(),
	}
}

func seedComment(id primitive.ObjectID, postID primitive.ObjectID, author primitive.ObjectID, parent *primitive.ObjectID) models.Comment {
	return models.Comment{
		ID:         id,
		PostID:     postID,
		ParentID:   parent,
		UserID:     author,
		AuthorName: "Author",
		Content:    "a comment",
		CreatedAt:  time.Now(),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
