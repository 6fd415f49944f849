package controllers

import (
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/commonroom/commonroom_backend/models"
	"github.com/commonroom/commonroom_backend/services"
	"github.com/commonroom/commonroom_backend/utils"
)

// UploadController hands out upload destinations for post media
type UploadController struct {
	DB      *mongo.Client
	storage *services.StorageService
	logger  *log.Logger
}

// NewUploadController creates a new upload controller
func NewUploadController(db *mongo.Client, storage *services.StorageService) *UploadController {
	return &UploadController{
		DB:      db,
		storage: storage,
		logger:  log.New(os.Stdout, "[UPLOAD] ", log.LstdFlags),
	}
}

// CreateUploadTicket returns a signed PUT URL the client uploads directly
// to the bucket with. Falls back to 501 when signed uploads are not
// configured; clients then use the direct upload endpoint.
func (uc *UploadController) CreateUploadTicket(c echo.Context) error {
	var req struct {
		Filename    string `json:"filename" validate:"required"`
		MediaType   string `json:"mediaType" validate:"required,oneof=image video"`
		ContentType string `json:"contentType"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	if !uc.storage.SignedUploadsEnabled() {
		return c.JSON(http.StatusNotImplemented, models.Response{
			Status:  http.StatusNotImplemented,
			Message: "Signed uploads are not configured; use the direct upload endpoint",
		})
	}

	ticket, err := uc.storage.CreateUploadTicket(c.Request().Context(), req.Filename, req.MediaType, req.ContentType)
	if err != nil {
		uc.logger.Printf("upload ticket failed: %v", err)
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Upload ticket created",
		Data:    ticket,
	})
}

// DirectUpload accepts the media bytes as multipart form data, stores
// them locally and returns the media ref with a thumbnail where one can
// be generated.
func (uc *UploadController) DirectUpload(c echo.Context) error {
	mediaType := c.FormValue("mediaType")
	if mediaType != "image" && mediaType != "video" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "mediaType must be 'image' or 'video'",
		})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Missing file",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to read file",
		})
	}
	defer src.Close()

	fileData, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to read file",
		})
	}

	url, err := uc.storage.StoreLocal(fileData, fileHeader.Filename, mediaType)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	ref := models.MediaRef{URL: url, MediaType: mediaType}
	switch mediaType {
	case "image":
		if thumb, err := utils.GenerateImageThumbnail(fileData, lastSegment(url)); err == nil {
			ref.ThumbnailURL = thumb
		} else {
			uc.logger.Printf("image thumbnail failed: %v", err)
		}
	case "video":
		if thumb, err := utils.GenerateVideoThumbnail(url); err == nil {
			ref.ThumbnailURL = thumb
		} else {
			uc.logger.Printf("video thumbnail failed: %v", err)
		}
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "File uploaded",
		Data:    ref,
	})
}

func lastSegment(url string) string {
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}
