package main

import (
	"context"
	"log"
	"mime"
	"os"

	"cloud.google.com/go/storage"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/commonroom/commonroom_backend/config"
	"github.com/commonroom/commonroom_backend/controllers"
	"github.com/commonroom/commonroom_backend/middleware"
	"github.com/commonroom/commonroom_backend/repositories"
	"github.com/commonroom/commonroom_backend/routes"
	"github.com/commonroom/commonroom_backend/services"
	"github.com/commonroom/commonroom_backend/utils"
	"github.com/commonroom/commonroom_backend/websocket"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	// Ensure correct MIME type for SVG files
	_ = mime.AddExtensionType(".svg", "image/svg+xml")

	// Initialize Firebase (FCM push and bucket credentials)
	config.InitFirebase()

	// Connect to Redis (count caching; optional)
	redisClient := config.ConnectRedis()

	// Connect to database
	client := config.ConnectDB()

	// Cloud Storage client for signed uploads; nil falls back to local
	// storage
	var storageClient *storage.Client
	if sc, err := storage.NewClient(context.Background()); err != nil {
		log.Printf("Warning: Cloud Storage unavailable, using local uploads: %v", err)
	} else {
		storageClient = sc
	}

	// Create WebSocket hub for per-post event streams
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Token blacklist cleanup
	go middleware.CleanupBlacklist()

	// Create a new Echo instance
	e := echo.New()

	// Initialize custom validator
	e.Validator = &CustomValidator{validator: validator.New()}

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter()

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(middleware.GlobalCORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())
	e.Use(middleware.SecurityHeadersWithConfig(middleware.SecurityConfig{
		AllowedDomains: []string{
			"https://commonroom.app",
			"https://www.commonroom.app",
			"https://storage.googleapis.com",
		},
	}))

	e.Match([]string{"GET", "HEAD"}, "/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "OK",
			"message": "Commonroom Backend is running",
			"version": "1.0",
		})
	})

	e.Match([]string{"GET", "HEAD"}, "/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	e.Use(httpsRedirect())

	// Initialize repositories
	feedCache := repositories.NewFeedCache(redisClient)
	postRepo := repositories.NewPostRepository(client, feedCache)
	commentRepo := repositories.NewCommentRepository(client)

	// Initialize controllers
	authController := controllers.NewAuthController(client)
	postController := controllers.NewPostController(client, postRepo, wsHub)
	commentController := controllers.NewCommentController(client, commentRepo, postRepo, wsHub)
	uploadController := controllers.NewUploadController(client, services.NewStorageService(storageClient))

	routes.SetupRoutes(e, client, authController, postController, commentController, uploadController)

	// Ensure the local uploads tree exists
	if err := utils.InitializeStorage(); err != nil {
		log.Printf("Warning: failed to prepare uploads directory: %v", err)
	}

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	e.Logger.Fatal(e.Start(":" + port))
}

func httpsRedirect() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("X-Forwarded-Proto") == "http" {
				return c.Redirect(301, "https://"+c.Request().Host+c.Request().RequestURI)
			}
			return next(c)
		}
	}
}
