package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commonroom/commonroom_backend/config"
	"github.com/commonroom/commonroom_backend/models"
)

var ErrReplyDepth = errors.New("replies cannot be nested")

// CommentRepository stores the comment tree for posts. Nesting is fixed at
// one level: a comment either has no parent or its parent is a top-level
// comment, and CreateReply rejects anything deeper.
type CommentRepository struct {
	comments *mongo.Collection
	posts    *mongo.Collection
}

func NewCommentRepository(db *mongo.Client) *CommentRepository {
	return &CommentRepository{
		comments: config.GetCollection(db, "comments"),
		posts:    config.GetCollection(db, "posts"),
	}
}

// ListComments returns the full comment tree for a post, top-level comments
// in creation order with their replies attached. One sorted query,
// partitioned in memory.
func (r *CommentRepository) ListComments(ctx context.Context, postID primitive.ObjectID) ([]models.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.comments.Find(ctx, bson.M{"postId": postID}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var flat []models.Comment
	if err := cursor.All(ctx, &flat); err != nil {
		return nil, err
	}
	return assembleTree(flat), nil
}

// assembleTree partitions a creation-ordered flat list into top-level
// comments with replies attached. Replies whose parent is missing (parent
// deleted between the two halves of a cascade) are dropped.
func assembleTree(flat []models.Comment) []models.Comment {
	tree := make([]models.Comment, 0, len(flat))
	index := make(map[primitive.ObjectID]int)
	for _, c := range flat {
		if c.ParentID == nil {
			index[c.ID] = len(tree)
			tree = append(tree, c)
		}
	}
	for _, c := range flat {
		if c.ParentID == nil {
			continue
		}
		if i, ok := index[*c.ParentID]; ok {
			tree[i].Replies = append(tree[i].Replies, c)
		}
	}
	return tree
}

// GetComment fetches a single comment or reply.
func (r *CommentRepository) GetComment(ctx context.Context, id primitive.ObjectID) (*models.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var comment models.Comment
	err := r.comments.FindOne(ctx, bson.M{"_id": id}).Decode(&comment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// CreateComment inserts a top-level comment on a post.
func (r *CommentRepository) CreateComment(ctx context.Context, comment models.Comment) (*models.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := r.posts.FindOne(ctx, bson.M{"_id": comment.PostID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	comment.ID = primitive.NewObjectID()
	comment.ParentID = nil
	comment.CreatedAt = time.Now()

	if _, err := r.comments.InsertOne(ctx, comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// CreateReply inserts a reply under a top-level comment. The parent must
// exist and must itself not be a reply.
func (r *CommentRepository) CreateReply(ctx context.Context, parentID primitive.ObjectID, reply models.Comment) (*models.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	parent, err := r.GetComment(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.ParentID != nil {
		return nil, ErrReplyDepth
	}

	reply.ID = primitive.NewObjectID()
	reply.PostID = parent.PostID
	reply.ParentID = &parent.ID
	reply.CreatedAt = time.Now()

	if _, err := r.comments.InsertOne(ctx, reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// DeleteComment removes a top-level comment and all its replies. The same
// authorship filter as post deletion applies for non-admins.
func (r *CommentRepository) DeleteComment(ctx context.Context, id, callerID primitive.ObjectID, isAdmin bool) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{"_id": id, "parentId": nil}
	if !isAdmin {
		filter["userId"] = callerID
	}

	result, err := r.comments.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrForbidden
	}

	_, err = r.comments.DeleteMany(ctx, bson.M{"parentId": id})
	return err
}

// DeleteReply removes a single reply.
func (r *CommentRepository) DeleteReply(ctx context.Context, id, callerID primitive.ObjectID, isAdmin bool) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{"_id": id, "parentId": bson.M{"$ne": nil}}
	if !isAdmin {
		filter["userId"] = callerID
	}

	result, err := r.comments.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrForbidden
	}
	return nil
}

// CommentCount counts all comments and replies on a post.
func (r *CommentRepository) CommentCount(ctx context.Context, postID primitive.ObjectID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return r.comments.CountDocuments(ctx, bson.M{"postId": postID})
}
