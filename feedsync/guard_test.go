package feedsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestGuardSingleFlightPerKind(t *testing.T) {
	g := NewGuard()

	assert.True(t, g.TryAcquire(OpLike, "p1"))
	assert.False(t, g.TryAcquire(OpLike, "p1"), "second acquire for same id must be refused")
	assert.True(t, g.IsBusy(OpLike, "p1"))

	// Same id under a different kind is independent.
	assert.True(t, g.TryAcquire(OpDeletePost, "p1"))

	g.Release(OpLike, "p1")
	assert.False(t, g.IsBusy(OpLike, "p1"))
	assert.True(t, g.TryAcquire(OpLike, "p1"))
}

func TestGuardReleaseUnheldIsNoop(t *testing.T) {
	g := NewGuard()
	g.Release(OpComment, "nope")
	assert.False(t, g.IsBusy(OpComment, "nope"))
}

func TestTempIDNamespacing(t *testing.T) {
	caller := primitive.NewObjectID()
	id := NewTempLikeID(caller)

	assert.True(t, IsTempID(id))
	assert.Contains(t, id, caller.Hex())
	assert.False(t, IsTempID(primitive.NewObjectID().Hex()), "server ids must never look provisional")
}
