package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	likeCountTTL = 5 * time.Minute
	feedTotalTTL = 30 * time.Second
)

// FeedCache keeps the hot projections (per-post like counts, the
// unfiltered feed total) in Redis so feed pages do not recount on every
// read. Counts are invalidated on the mutations that change them; a nil
// Redis client disables caching entirely.
type FeedCache struct {
	client *redis.Client
}

func NewFeedCache(client *redis.Client) *FeedCache {
	return &FeedCache{client: client}
}

func likeCountKey(postID primitive.ObjectID) string {
	return "likes:count:" + postID.Hex()
}

// GetLikeCount returns the cached count, or ok=false on miss or when
// caching is disabled.
func (c *FeedCache) GetLikeCount(ctx context.Context, postID primitive.ObjectID) (int64, bool) {
	if c.client == nil {
		return 0, false
	}
	count, err := c.client.Get(ctx, likeCountKey(postID)).Int64()
	if err != nil {
		return 0, false
	}
	return count, true
}

func (c *FeedCache) SetLikeCount(ctx context.Context, postID primitive.ObjectID, count int64) {
	if c.client == nil {
		return
	}
	c.client.Set(ctx, likeCountKey(postID), count, likeCountTTL)
}

func (c *FeedCache) InvalidateLikeCount(ctx context.Context, postID primitive.ObjectID) {
	if c.client == nil {
		return
	}
	c.client.Del(ctx, likeCountKey(postID))
}

// GetFeedTotal returns the cached total for the unfiltered feed.
func (c *FeedCache) GetFeedTotal(ctx context.Context) (int64, bool) {
	if c.client == nil {
		return 0, false
	}
	count, err := c.client.Get(ctx, "feed:total").Int64()
	if err != nil {
		return 0, false
	}
	return count, true
}

func (c *FeedCache) SetFeedTotal(ctx context.Context, total int64) {
	if c.client == nil {
		return
	}
	c.client.Set(ctx, "feed:total", total, feedTotalTTL)
}

func (c *FeedCache) InvalidateFeedTotal(ctx context.Context) {
	if c.client == nil {
		return
	}
	c.client.Del(ctx, "feed:total")
}

// String implements fmt.Stringer for debug logging.
func (c *FeedCache) String() string {
	return fmt.Sprintf("FeedCache(enabled=%t)", c.client != nil)
}
