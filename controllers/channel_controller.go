package controllers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commonroom/commonroom_backend/config"
	"github.com/commonroom/commonroom_backend/middleware"
	"github.com/commonroom/commonroom_backend/models"
)

// ChannelController serves the community channels posts are filed under
type ChannelController struct {
	DB *mongo.Client
}

// NewChannelController creates a new channel controller
func NewChannelController(db *mongo.Client) *ChannelController {
	return &ChannelController{DB: db}
}

// ListChannels returns all channels, oldest first
func (cc *ChannelController) ListChannels(c echo.Context) error {
	ctx := c.Request().Context()
	collection := config.GetCollection(cc.DB, "channels")

	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := collection.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load channels",
		})
	}
	defer cursor.Close(ctx)

	channels := []models.Channel{}
	if err := cursor.All(ctx, &channels); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load channels",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Channels loaded",
		Data:    channels,
	})
}

// CreateChannel creates a new channel. Admin only, enforced by the route.
func (cc *ChannelController) CreateChannel(c echo.Context) error {
	userID, err := middleware.ExtractUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	var req models.ChannelRequest
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

	channel := models.Channel{
		ID:          primitive.NewObjectID(),
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   userID,
		CreatedAt:   time.Now(),
	}

	collection := config.GetCollection(cc.DB, "channels")
	if _, err := collection.InsertOne(c.Request().Context(), channel); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create channel",
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Channel created",
		Data:    channel,
	})
}
