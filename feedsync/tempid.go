package feedsync

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// tempIDPrefix namespaces client-issued placeholder ids so they can never
// collide with, or be mistaken for, server ObjectID hexes.
const tempIDPrefix = "temp-"

// NewTempLikeID builds a placeholder id for an optimistic like. It lives
// only between the optimistic apply and the server confirmation or
// rollback, and is never persisted or compared against server ids.
func NewTempLikeID(callerID primitive.ObjectID) string {
	return fmt.Sprintf("%s%s-%d", tempIDPrefix, callerID.Hex(), time.Now().UnixNano())
}

// IsTempID reports whether id is a client-issued placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}
