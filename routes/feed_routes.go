package routes

import (
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/commonroom/commonroom_backend/controllers"
	"github.com/commonroom/commonroom_backend/middleware"
)

// RegisterFeedRoutes sets up the feed, comment thread and realtime stream
// routes
func RegisterFeedRoutes(e *echo.Echo, db *mongo.Client, postController *controllers.PostController, commentController *controllers.CommentController) {
	// The stream endpoint authenticates via a token query parameter inside
	// the handler, so it stays outside the JWT group.
	e.GET("/api/posts/:id/stream", postController.Stream)

	api := e.Group("/api", middleware.JWTMiddleware(), middleware.ActivityTracker(db))

	// Feed
	api.GET("/posts", postController.GetFeed)
	api.POST("/posts", postController.CreatePost)
	api.GET("/posts/:id", postController.GetPost)
	api.DELETE("/posts/:id", postController.DeletePost)
	api.POST("/posts/:id/like", postController.ToggleLike)
	api.GET("/posts/:id/share-qr", postController.ShareQR)

	// Comment threads
	api.GET("/posts/:id/comments", commentController.ListComments)
	api.POST("/posts/:id/comments", commentController.CreateComment)
	api.POST("/comments/:id/replies", commentController.CreateReply)
	api.DELETE("/comments/:id", commentController.DeleteComment)
	api.DELETE("/replies/:id", commentController.DeleteReply)
}
