package routes

import (
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/commonroom/commonroom_backend/controllers"
	"github.com/commonroom/commonroom_backend/middleware"
)

// RegisterChannelRoutes sets up the channel routes
func RegisterChannelRoutes(e *echo.Echo, db *mongo.Client) {
	channelController := controllers.NewChannelController(db)

	api := e.Group("/api/channels", middleware.JWTMiddleware())
	api.GET("", channelController.ListChannels)
	api.POST("", channelController.CreateChannel, middleware.RequireAdmin())
}
