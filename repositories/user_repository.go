package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/commonroom/commonroom_backend/config"
	"github.com/commonroom/commonroom_backend/models"
)

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Client) *UserRepository {
	return &UserRepository{
		collection: config.GetCollection(db, "users"),
	}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a new user. The unique email index turns a duplicate
// signup into a key collision, reported as such.
func (r *UserRepository) Create(ctx context.Context, user models.User) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	user.ID = primitive.NewObjectID()
	user.IsActive = true
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	if user.Role == "" {
		user.Role = "user"
	}

	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpdateFCMToken(ctx context.Context, userID primitive.ObjectID, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"fcmToken":  token,
		"updatedAt": time.Now(),
	}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, update)
	return err
}

func (r *UserRepository) UpdateProfilePicture(ctx context.Context, userID primitive.ObjectID, profileURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"profilePic": profileURL,
		"updatedAt":  time.Now(),
	}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, update)
	return err
}

// TouchActivity records the last time a user hit an authenticated route.
func (r *UserRepository) TouchActivity(ctx context.Context, userID primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{"lastActivityAt": time.Now()}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": userID}, update)
	return err
}
