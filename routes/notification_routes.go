package routes

import (
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/commonroom/commonroom_backend/controllers"
	"github.com/commonroom/commonroom_backend/middleware"
)

// RegisterNotificationRoutes sets up the in-app notification routes
func RegisterNotificationRoutes(e *echo.Echo, db *mongo.Client) {
	notificationController := controllers.NewNotificationController(db)

	api := e.Group("/api/notifications", middleware.JWTMiddleware())
	api.GET("", notificationController.GetNotifications)
	api.PUT("/:id/read", notificationController.MarkAsRead)
	api.PUT("/read-all", notificationController.MarkAllAsRead)
}
