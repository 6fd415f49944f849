package routes

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/commonroom/commonroom_backend/controllers"
	"github.com/commonroom/commonroom_backend/middleware"
	"github.com/commonroom/commonroom_backend/models"
)

// RegisterFileRoutes sets up upload and file serving routes
func RegisterFileRoutes(e *echo.Echo, uploadController *controllers.UploadController) {
	api := e.Group("/api/uploads", middleware.JWTMiddleware())
	api.POST("", uploadController.CreateUploadTicket)
	api.POST("/direct", uploadController.DirectUpload)

	// Locally stored media
	e.GET("/uploads/*", ServeFile)
}

// ServeFile handles serving uploaded files with proper security checks
func ServeFile(c echo.Context) error {
	path := c.Param("*")
	if path == "" {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "File not found - no path provided",
		})
	}

	// Clean the path to prevent directory traversal
	cleanPath := filepath.Clean(path)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, "../") {
		return c.JSON(http.StatusForbidden, models.Response{
			Status:  http.StatusForbidden,
			Message: "Access denied - invalid path",
		})
	}

	fullPath := filepath.Join("uploads", cleanPath)

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "File not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Error accessing file",
		})
	}

	// Don't allow directory listing
	if info.IsDir() {
		return c.JSON(http.StatusForbidden, models.Response{
			Status:  http.StatusForbidden,
			Message: "Access denied - directory listing not allowed",
		})
	}

	// Media objects are immutable once written, cache hard
	c.Response().Header().Set("Cache-Control", "public, max-age=31536000")
	c.Response().Header().Set("Expires", time.Now().AddDate(1, 0, 0).Format(time.RFC1123))

	return c.File(fullPath)
}
