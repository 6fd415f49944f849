package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

func TestFeedFilterEmptyCriteriaMatchesEverything(t *testing.T) {
	filter := feedFilter(models.FeedCriteria{})
	assert.Empty(t, filter)
}

func TestFeedFilterSearchMatchesContentAndAuthor(t *testing.T) {
	filter := feedFilter(models.FeedCriteria{Search: "golang"})

	or, ok := filter["$or"].([]bson.M)
	require.True(t, ok)
	require.Len(t, or, 2)
	assert.Contains(t, or[0], "content")
	assert.Contains(t, or[1], "authorName")

	regex := or[0]["content"].(bson.M)
	assert.Equal(t, "golang", regex["$regex"])
	assert.Equal(t, "i", regex["$options"])
}

func TestFeedFilterChannelScopesTheQuery(t *testing.T) {
	channelID := primitive.NewObjectID()
	filter := feedFilter(models.FeedCriteria{Search: "meetup", ChannelID: channelID})

	assert.Equal(t, channelID, filter["channelId"])
	assert.Contains(t, filter, "$or")
}
