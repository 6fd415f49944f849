package controllers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/commonroom/commonroom_backend/middleware"
	"github.com/commonroom/commonroom_backend/models"
	"github.com/commonroom/commonroom_backend/repositories"
	"github.com/commonroom/commonroom_backend/utils"
	"github.com/commonroom/commonroom_backend/websocket"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PostController serves the feed and post mutations
type PostController struct {
	DB     *mongo.Client
	posts  *repositories.PostRepository
	hub    *websocket.Hub
	logger *log.Logger
}

// NewPostController creates a new post controller
func NewPostController(db *mongo.Client, posts *repositories.PostRepository, hub *websocket.Hub) *PostController {
	return &PostController{
		DB:     db,
		posts:  posts,
		hub:    hub,
		logger: log.New(os.Stdout, "[POST] ", log.LstdFlags),
	}
}

// GetFeed returns one page of the feed, newest first. Supports search and
// channel filters; hasMore follows from page*pageSize against the total.
func (pc *PostController) GetFeed(c echo.Context) error {
	userID, err := middleware.ExtractUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	criteria := models.FeedCriteria{Search: c.QueryParam("search")}
	if channel := c.QueryParam("channel"); channel != "" {
		channelID, err := primitive.ObjectIDFromHex(channel)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid channel id",
			})
		}
		criteria.ChannelID = channelID
	}

	posts, total, err := pc.posts.ListPosts(c.Request().Context(), criteria, page, pageSize, userID)
	if err != nil {
		pc.logger.Printf("feed query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load feed",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Feed loaded",
		Data: models.FeedPage{
			Posts:      posts,
			Page:       page,
			TotalCount: total,
			HasMore:    int64(page*pageSize) < total,
		},
	})
}

// GetPost returns a single post with its counts
func (pc *PostController) GetPost(c echo.Context) error {
	userID, err := middleware.ExtractUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid post id",
		})
	}

	post, err := pc.posts.GetPost(c.Request().Context(), postID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Post not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load post",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Post loaded",
		Data:    post,
	})
}

// CreatePost creates a new post authored by the caller
func (pc *PostController) CreatePost(c echo.Context) error {
	userID, err := middleware.ExtractUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	var req models.PostRequest
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

	user, err := utils.GetUserFromToken(c, pc.DB)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	post := models.Post{
		UserID:     userID,
		AuthorName: user.FullName,
		Content:    utils.SanitizeInput(req.Content),
		Media:      req.Media,
	}
	if post.Content == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Post content cannot be empty",
		})
	}
	if req.ChannelID != "" {
		channelID, err := primitive.ObjectIDFromHex(req.ChannelID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Invalid channel id",
			})
		}
		post.ChannelID = channelID
	}

	created, err := pc.posts.CreatePost(c.Request().Context(), post)
	if err != nil {
		pc.logger.Printf("create post failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create post",
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Post created",
		Data:    created,
	})
}

// DeletePost removes a post. Only the author or an admin may delete it.
func (pc *PostController) DeletePost(c echo.Context) error {
	userID, err := middleware.ExtractUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid post id",
		})
	}

	err = pc.posts.DeletePost(c.Request().Context(), postID, userID, middleware.IsAdmin(c))
	if err != nil {
		if errors.Is(err, repositories.ErrForbidden) {
			return c.JSON(http.StatusForbidden, models.Response{
				Status:  http.StatusForbidden,
				Message: "You cannot delete this post",
			})
		}
		pc.logger.Printf("delete post failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to delete post",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Post deleted",
	})
}

// ToggleLike flips the caller's like on a post and returns the
// authoritative count. New likes are pushed to the post's stream and the
// post author is notified.
func (pc *PostController) ToggleLike(c echo.Context) error {
	userID, err := middleware.ExtractUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid post id",
		})
	}

	like, count, err := pc.posts.ToggleLike(c.Request().Context(), postID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Post not found",
			})
		}
		pc.logger.Printf("toggle like failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to toggle like",
		})
	}

	if like != nil {
		pc.hub.BroadcastToPost(postID, websocket.EventBatch{
			PostID: postID,
			Likes:  []models.Like{*like},
		})

		actorName := ""
		if user, err := utils.GetUserFromToken(c, pc.DB); err == nil {
			actorName = user.FullName
		}
		go func() {
			post, err := pc.posts.GetPost(context.Background(), postID, primitive.NilObjectID)
			if err != nil {
				return
			}
			utils.NotifyPostAuthor(pc.DB, post, userID, actorName, models.NotificationTypeLike, nil)
		}()
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Like toggled",
		Data: models.ToggleLikeResponse{
			Liked:     like != nil,
			LikeCount: count,
		},
	})
}

// ShareQR renders a QR code pointing at the post's share URL
func (pc *PostController) ShareQR(c echo.Context) error {
	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid post id",
		})
	}

	userID, err := middleware.ExtractUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}
	if _, err := pc.posts.GetPost(c.Request().Context(), postID, userID); err != nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Post not found",
		})
	}

	baseURL := os.Getenv("APP_BASE_URL")
	if baseURL == "" {
		baseURL = "https://commonroom.app"
	}
	shareURL := fmt.Sprintf("%s/posts/%s", baseURL, postID.Hex())

	code, err := qr.Encode(shareURL, qr.M, qr.Auto)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate QR code",
		})
	}
	code, err = barcode.Scale(code, 256, 256)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to scale QR code",
		})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to encode QR code",
		})
	}

	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// Stream attaches the caller to the post's realtime event stream. The
// token arrives as a query parameter because browsers cannot set headers
// on websocket upgrades.
func (pc *PostController) Stream(c echo.Context) error {
	claims, err := middleware.ParseToken(c.QueryParam("token"))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}
	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid post id",
		})
	}

	if _, err := pc.posts.GetPost(c.Request().Context(), postID, primitive.NilObjectID); err != nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Post not found",
		})
	}

	return websocket.HandleStream(c, pc.hub, userID, postID)
}
