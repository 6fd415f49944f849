package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commonroom/commonroom_backend/models"
)

func flatComment(id primitive.ObjectID, parent *primitive.ObjectID, content string, at time.Time) models.Comment {
	return models.Comment{
		ID:        id,
		PostID:    primitive.NewObjectID(),
		ParentID:  parent,
		Content:   content,
		CreatedAt: at,
	}
}

func TestAssembleTreeNestsRepliesUnderParents(t *testing.T) {
	now := time.Now()
	parentA := primitive.NewObjectID()
	parentB := primitive.NewObjectID()

	flat := []models.Comment{
		flatComment(parentA, nil, "first", now),
		flatComment(parentB, nil, "second", now.Add(time.Minute)),
		flatComment(primitive.NewObjectID(), &parentA, "reply to first", now.Add(2*time.Minute)),
		flatComment(primitive.NewObjectID(), &parentB, "reply to second", now.Add(3*time.Minute)),
		flatComment(primitive.NewObjectID(), &parentA, "another reply to first", now.Add(4*time.Minute)),
	}

	tree := assembleTree(flat)

	require.Len(t, tree, 2)
	assert.Equal(t, "first", tree[0].Content)
	assert.Equal(t, "second", tree[1].Content)
	require.Len(t, tree[0].Replies, 2)
	assert.Equal(t, "reply to first", tree[0].Replies[0].Content)
	assert.Equal(t, "another reply to first", tree[0].Replies[1].Content)
	require.Len(t, tree[1].Replies, 1)
}

func TestAssembleTreeDropsOrphanReplies(t *testing.T) {
	missing := primitive.NewObjectID()
	parent := primitive.NewObjectID()

	flat := []models.Comment{
		flatComment(parent, nil, "kept", time.Now()),
		flatComment(primitive.NewObjectID(), &missing, "orphan", time.Now()),
	}

	tree := assembleTree(flat)

	require.Len(t, tree, 1)
	assert.Empty(t, tree[0].Replies)
}

func TestAssembleTreeEmptyInput(t *testing.T) {
	assert.Empty(t, assembleTree(nil))
}
