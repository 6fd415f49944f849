package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MediaRef is a stable reference to an uploaded media object. The URL is
// the public object location returned by the storage service once the
// client finished its upload.
type MediaRef struct {
	URL          string `json:"url" bson:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty" bson:"thumbnailUrl,omitempty"`
	MediaType    string `json:"mediaType" bson:"mediaType"` // "image" or "video"
}

// Post model for feed posts. LikeCount, CommentCount and Liked are
// projections computed from the likes collection and the comment tree at
// read time; they are never written from client input.
type Post struct {
	ID           primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID       primitive.ObjectID `json:"userId" bson:"userId"`
	AuthorName   string             `json:"authorName" bson:"authorName"`
	ChannelID    primitive.ObjectID `json:"channelId,omitempty" bson:"channelId,omitempty"`
	Content      string             `json:"content" bson:"content"`
	Media        []MediaRef         `json:"media,omitempty" bson:"media,omitempty"`
	LikeCount    int64              `json:"likeCount" bson:"-"`
	CommentCount int                `json:"commentCount" bson:"-"`
	Liked        bool               `json:"liked" bson:"-"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
}

// Comment model for post comments. ParentID is nil for top-level comments
// and set for replies; replies never carry replies of their own (nesting is
// fixed at one level, enforced by the repository and the coordinator).
type Comment struct {
	ID         primitive.ObjectID  `json:"id,omitempty" bson:"_id,omitempty"`
	PostID     primitive.ObjectID  `json:"postId" bson:"postId"`
	ParentID   *primitive.ObjectID `json:"parentId,omitempty" bson:"parentId,omitempty"`
	UserID     primitive.ObjectID  `json:"userId" bson:"userId"`
	AuthorName string              `json:"authorName" bson:"authorName"`
	Content    string              `json:"content" bson:"content"`
	CreatedAt  time.Time           `json:"createdAt" bson:"createdAt"`
	Replies    []Comment           `json:"replies,omitempty" bson:"-"`
}

// Like model. The wire ID is the server ObjectID hex once confirmed; while
// a toggle is outstanding the client tracks an optimistic entry under a
// temp- id that never reaches storage.
type Like struct {
	ID        string             `json:"id" bson:"-"`
	ObjectID  primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	PostID    primitive.ObjectID `json:"postId" bson:"postId"`
	UserID    primitive.ObjectID `json:"userId" bson:"userId"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// FeedPage is one materialized window of the feed.
type FeedPage struct {
	Posts      []Post `json:"posts"`
	Page       int    `json:"page"`
	TotalCount int64  `json:"totalCount"`
	HasMore    bool   `json:"hasMore"`
}

// FeedCriteria are the filter parameters a feed query runs under.
type FeedCriteria struct {
	Search    string             `json:"search,omitempty"`
	ChannelID primitive.ObjectID `json:"channelId,omitempty"`
}

// PostRequest model for creating a new post
type PostRequest struct {
	Content   string     `json:"content" validate:"required"`
	ChannelID string     `json:"channelId,omitempty"`
	Media     []MediaRef `json:"media,omitempty"`
}

// CommentRequest model for creating a comment or reply
type CommentRequest struct {
	Content string `json:"content" validate:"required"`
}

// ToggleLikeResponse carries the authoritative state after a like toggle.
type ToggleLikeResponse struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"likeCount"`
}
