package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/commonroom/commonroom_backend/controllers"
	"github.com/commonroom/commonroom_backend/middleware"
)

// RegisterAuthRoutes sets up all authentication routes
func RegisterAuthRoutes(e *echo.Echo, authController *controllers.AuthController) {
	// Public authentication routes
	e.POST("/api/auth/signup", authController.Signup)
	e.POST("/api/auth/login", authController.Login)
	e.POST("/api/auth/google", authController.GoogleLogin)
	e.GET("/api/auth/validate-token", authController.ValidateSession)

	// Authenticated routes
	auth := e.Group("/api/auth", middleware.JWTMiddleware())
	auth.POST("/logout", authController.Logout)
	auth.PUT("/fcm-token", authController.UpdateFCMToken)
}
