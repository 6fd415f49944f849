package routes

import (
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/commonroom/commonroom_backend/controllers"
)

// SetupRoutes configures all API routes by calling individual route
// registration functions
func SetupRoutes(e *echo.Echo, db *mongo.Client,
	authController *controllers.AuthController,
	postController *controllers.PostController,
	commentController *controllers.CommentController,
	uploadController *controllers.UploadController,
) {
	RegisterAuthRoutes(e, authController)
	RegisterFeedRoutes(e, db, postController, commentController)
	RegisterNotificationRoutes(e, db)
	RegisterChannelRoutes(e, db)
	RegisterFileRoutes(e, uploadController)
}
