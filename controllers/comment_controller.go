package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/commonroom/commonroom_backend/middleware"
	"github.com/commonroom/commonroom_backend/models"
	"github.com/commonroom/commonroom_backend/repositories"
	"github.com/commonroom/commonroom_backend/utils"
	"github.com/commonroom/commonroom_backend/websocket"
)

// CommentController serves comment threads and their mutations
type CommentController struct {
	DB       *mongo.Client
	comments *repositories.CommentRepository
	posts    *repositories.PostRepository
	hub      *websocket.Hub
	logger   *log.Logger
}

// NewCommentController creates a new comment controller
func NewCommentController(db *mongo.Client, comments *repositories.CommentRepository, posts *repositories.PostRepository, hub *websocket.Hub) *CommentController {
	return &CommentController{
		DB:       db,
		comments: comments,
		posts:    posts,
		hub:      hub,
		logger:   log.New(os.Stdout, "[COMMENT] ", log.LstdFlags),
	}
}

// ListComments returns the full comment tree for a post
func (cc *CommentController) ListComments(c echo.Context) error {
	postID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid post id",
		})
	}

	comments, err := cc.comments.ListComments(c.Request().Context(), postID)
	if err != nil {
		cc.logger.Printf("list comments failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load comments",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Comments loaded",
		Data:    comments,
	})
}

// CreateComment adds a top-level comment on a post
func (cc *CommentController) CreateComment(c echo.Context) error {
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

	req, err := cc.bindCommentRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	user, err := utils.GetUserFromToken(c, cc.DB)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	created, err := cc.comments.CreateComment(c.Request().Context(), models.Comment{
		PostID:     postID,
		UserID:     userID,
		AuthorName: user.FullName,
		Content:    req.Content,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Post not found",
			})
		}
		cc.logger.Printf("create comment failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create comment",
		})
	}

	cc.publishAndNotify(created, userID, user.FullName, models.NotificationTypeComment)

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Comment created",
		Data:    created,
	})
}

// CreateReply adds a reply under a top-level comment. Replies to replies
// are rejected; the thread nests exactly one level.
func (cc *CommentController) CreateReply(c echo.Context) error {
	userID, err := middleware.ExtractUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	parentID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid comment id",
		})
	}

	req, err := cc.bindCommentRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
		})
	}

	user, err := utils.GetUserFromToken(c, cc.DB)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	created, err := cc.comments.CreateReply(c.Request().Context(), parentID, models.Comment{
		UserID:     userID,
		AuthorName: user.FullName,
		Content:    req.Content,
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Comment not found",
			})
		case errors.Is(err, repositories.ErrReplyDepth):
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Replies cannot be nested",
			})
		default:
			cc.logger.Printf("create reply failed: %v", err)
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Failed to create reply",
			})
		}
	}

	cc.publishAndNotify(created, userID, user.FullName, models.NotificationTypeReply)

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Reply created",
		Data:    created,
	})
}

// DeleteComment removes a top-level comment and its replies
func (cc *CommentController) DeleteComment(c echo.Context) error {
	return cc.deleteThreadItem(c, false)
}

// DeleteReply removes a single reply
func (cc *CommentController) DeleteReply(c echo.Context) error {
	return cc.deleteThreadItem(c, true)
}

func (cc *CommentController) deleteThreadItem(c echo.Context, reply bool) error {
	userID, err := middleware.ExtractUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid id",
		})
	}

	if reply {
		err = cc.comments.DeleteReply(c.Request().Context(), id, userID, middleware.IsAdmin(c))
	} else {
		err = cc.comments.DeleteComment(c.Request().Context(), id, userID, middleware.IsAdmin(c))
	}
	if err != nil {
		if errors.Is(err, repositories.ErrForbidden) {
			return c.JSON(http.StatusForbidden, models.Response{
				Status:  http.StatusForbidden,
				Message: "You cannot delete this comment",
			})
		}
		cc.logger.Printf("delete comment failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to delete comment",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Deleted",
	})
}

func (cc *CommentController) bindCommentRequest(c echo.Context) (*models.CommentRequest, error) {
	var req models.CommentRequest
	if err := c.Bind(&req); err != nil {
		return nil, errors.New("invalid request body")
	}
	req.Content = utils.SanitizeInput(req.Content)
	if req.Content == "" {
		return nil, errors.New("comment content cannot be empty")
	}
	if err := c.Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// publishAndNotify pushes the new comment to the post's stream and
// notifies the post author out of band.
func (cc *CommentController) publishAndNotify(comment *models.Comment, actorID primitive.ObjectID, actorName, notifType string) {
	cc.hub.BroadcastToPost(comment.PostID, websocket.EventBatch{
		PostID:   comment.PostID,
		Comments: []models.Comment{*comment},
	})

	postID := comment.PostID
	commentID := comment.ID
	go func() {
		post, err := cc.posts.GetPost(context.Background(), postID, primitive.NilObjectID)
		if err != nil {
			return
		}
		utils.NotifyPostAuthor(cc.DB, post, actorID, actorName, notifType, &commentID)
	}()
}
