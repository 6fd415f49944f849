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

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("not allowed")
)

// PostRepository is the authoritative store for posts and likes. Like and
// comment counts are projections recomputed from the underlying
// collections on read and after every toggle; they are never incremented
// blindly, so they cannot drift from the Like set or the comment tree.
type PostRepository struct {
	posts    *mongo.Collection
	comments *mongo.Collection
	likes    *mongo.Collection
	cache    *FeedCache
}

func NewPostRepository(db *mongo.Client, cache *FeedCache) *PostRepository {
	return &PostRepository{
		posts:    config.GetCollection(db, "posts"),
		comments: config.GetCollection(db, "comments"),
		likes:    config.GetCollection(db, "likes"),
		cache:    cache,
	}
}

func feedFilter(criteria models.FeedCriteria) bson.M {
	filter := bson.M{}
	if criteria.Search != "" {
		regex := bson.M{"$regex": criteria.Search, "$options": "i"}
		filter["$or"] = []bson.M{
			{"content": regex},
			{"authorName": regex},
		}
	}
	if criteria.ChannelID != primitive.NilObjectID {
		filter["channelId"] = criteria.ChannelID
	}
	return filter
}

// ListPosts returns one feed page newest-first plus the total match count.
// callerID drives the per-caller liked flag.
func (r *PostRepository) ListPosts(ctx context.Context, criteria models.FeedCriteria, page, pageSize int, callerID primitive.ObjectID) ([]models.Post, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if page < 1 {
		page = 1
	}
	filter := feedFilter(criteria)

	var total int64
	var err error
	unfiltered := criteria.Search == "" && criteria.ChannelID == primitive.NilObjectID
	if unfiltered {
		if cached, ok := r.cache.GetFeedTotal(ctx); ok {
			total = cached
		} else {
			total, err = r.posts.CountDocuments(ctx, filter)
			if err != nil {
				return nil, 0, err
			}
			r.cache.SetFeedTotal(ctx, total)
		}
	} else {
		total, err = r.posts.CountDocuments(ctx, filter)
		if err != nil {
			return nil, 0, err
		}
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := r.posts.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, 0, err
	}

	for i := range posts {
		if err := r.project(ctx, &posts[i], callerID); err != nil {
			return nil, 0, err
		}
	}
	return posts, total, nil
}

// project fills the post's like-count, comment-count and liked
// projections from the underlying collections.
func (r *PostRepository) project(ctx context.Context, post *models.Post, callerID primitive.ObjectID) error {
	likeCount, ok := r.cache.GetLikeCount(ctx, post.ID)
	if !ok {
		var err error
		likeCount, err = r.likes.CountDocuments(ctx, bson.M{"postId": post.ID})
		if err != nil {
			return err
		}
		r.cache.SetLikeCount(ctx, post.ID, likeCount)
	}
	post.LikeCount = likeCount

	commentCount, err := r.comments.CountDocuments(ctx, bson.M{"postId": post.ID})
	if err != nil {
		return err
	}
	post.CommentCount = int(commentCount)

	if callerID != primitive.NilObjectID {
		err = r.likes.FindOne(ctx, bson.M{"postId": post.ID, "userId": callerID}).Err()
		switch {
		case err == nil:
			post.Liked = true
		case errors.Is(err, mongo.ErrNoDocuments):
			post.Liked = false
		default:
			return err
		}
	}
	return nil
}

// GetPost returns one post with projections.
func (r *PostRepository) GetPost(ctx context.Context, id, callerID primitive.ObjectID) (*models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var post models.Post
	err := r.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.project(ctx, &post, callerID); err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePost inserts a new post authored by the caller.
func (r *PostRepository) CreatePost(ctx context.Context, post models.Post) (*models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	post.ID = primitive.NewObjectID()
	post.CreatedAt = time.Now()

	if _, err := r.posts.InsertOne(ctx, post); err != nil {
		return nil, err
	}
	r.cache.InvalidateFeedTotal(ctx)
	return &post, nil
}

// DeletePost removes a post and cascades its comments, replies and likes.
// Unless the caller is an admin the delete filter also matches on the
// author, so a forged request deletes nothing even if the handler check
// was bypassed.
func (r *PostRepository) DeletePost(ctx context.Context, id, callerID primitive.ObjectID, isAdmin bool) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{"_id": id}
	if !isAdmin {
		filter["userId"] = callerID
	}

	result, err := r.posts.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrForbidden
	}

	if _, err := r.comments.DeleteMany(ctx, bson.M{"postId": id}); err != nil {
		return err
	}
	if _, err := r.likes.DeleteMany(ctx, bson.M{"postId": id}); err != nil {
		return err
	}
	r.cache.InvalidateLikeCount(ctx, id)
	r.cache.InvalidateFeedTotal(ctx)
	return nil
}

// ToggleLike flips the caller's like on a post and returns the resulting
// authoritative count, plus the created like when the toggle went in the
// like direction (nil on unlike). The unique (postId, userId) index makes
// the insert race-safe: a concurrent duplicate insert surfaces as a key
// collision and is treated as the delete half of the toggle.
func (r *PostRepository) ToggleLike(ctx context.Context, postID, callerID primitive.ObjectID) (*models.Like, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := r.posts.FindOne(ctx, bson.M{"_id": postID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	like := &models.Like{
		ObjectID:  primitive.NewObjectID(),
		PostID:    postID,
		UserID:    callerID,
		CreatedAt: time.Now(),
	}
	like.ID = like.ObjectID.Hex()

	_, err = r.likes.InsertOne(ctx, like)
	if mongo.IsDuplicateKeyError(err) {
		if _, err := r.likes.DeleteOne(ctx, bson.M{"postId": postID, "userId": callerID}); err != nil {
			return nil, 0, err
		}
		like = nil
	} else if err != nil {
		return nil, 0, err
	}

	count, err := r.likes.CountDocuments(ctx, bson.M{"postId": postID})
	if err != nil {
		return nil, 0, err
	}
	r.cache.SetLikeCount(ctx, postID, count)
	return like, count, nil
}
