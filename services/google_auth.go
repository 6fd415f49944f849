package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/jwk"
	"github.com/lestrrat-go/jwx/jwt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/commonroom/commonroom_backend/config"
	"github.com/commonroom/commonroom_backend/middleware"
	"github.com/commonroom/commonroom_backend/models"
)

const googleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

// GoogleAuthService handles sign-in with Google ID tokens. Tokens are
// verified against Google's JWKS, which is fetched and cached with
// automatic refresh.
type GoogleAuthService struct {
	DB       *mongo.Client
	clientID string
	refresh  *jwk.AutoRefresh
}

// GoogleTokenInfo is the subset of verified ID-token claims we use.
type GoogleTokenInfo struct {
	Sub           string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// NewGoogleAuthService creates a new Google auth service. clientID is the
// OAuth client ID the token audience must match; empty skips the audience
// check (development only).
func NewGoogleAuthService(db *mongo.Client, clientID string) *GoogleAuthService {
	ar := jwk.NewAutoRefresh(context.Background())
	ar.Configure(googleCertsURL, jwk.WithMinRefreshInterval(15*time.Minute))
	return &GoogleAuthService{
		DB:       db,
		clientID: clientID,
		refresh:  ar,
	}
}

// AuthenticateUser verifies a Google ID token, upserts the matching user
// and returns tokens plus the user payload.
func (s *GoogleAuthService) AuthenticateUser(ctx context.Context, idToken string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if idToken == "" {
		return nil, errors.New("ID token is required")
	}

	info, err := s.verifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify Google ID token: %w", err)
	}
	if info.Email == "" {
		return nil, errors.New("email is required")
	}
	if !info.EmailVerified {
		return nil, errors.New("email is not verified by Google")
	}

	collection := config.GetCollection(s.DB, "users")

	var user models.User
	err = collection.FindOne(ctx, bson.M{"googleId": info.Sub}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		err = collection.FindOne(ctx, bson.M{"email": info.Email}).Decode(&user)
	}

	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		now := time.Now()
		user = models.User{
			ID:         primitive.NewObjectID(),
			Email:      info.Email,
			FullName:   info.Name,
			Role:       "user",
			IsActive:   true,
			GoogleID:   info.Sub,
			ProfilePic: info.Picture,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, err := collection.InsertOne(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("database error: %w", err)
	default:
		if user.GoogleID == "" {
			update := bson.M{"$set": bson.M{
				"googleId":   info.Sub,
				"profilePic": info.Picture,
				"updatedAt":  time.Now(),
			}}
			if _, err := collection.UpdateOne(ctx, bson.M{"_id": user.ID}, update); err != nil {
				return nil, fmt.Errorf("failed to update user: %w", err)
			}
			user.GoogleID = info.Sub
			user.ProfilePic = info.Picture
		}
	}

	token, refreshToken, err := middleware.GenerateJWT(user.ID.Hex(), user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return map[string]interface{}{
		"token":        token,
		"refreshToken": refreshToken,
		"user": map[string]interface{}{
			"id":         user.ID,
			"email":      user.Email,
			"fullName":   user.FullName,
			"role":       user.Role,
			"profilePic": user.ProfilePic,
		},
	}, nil
}

// verifyIDToken checks the token signature against Google's JWKS and
// validates issuer, audience and expiry.
func (s *GoogleAuthService) verifyIDToken(ctx context.Context, idToken string) (*GoogleTokenInfo, error) {
	keySet, err := s.refresh.Fetch(ctx, googleCertsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Google JWKS: %w", err)
	}

	token, err := jwt.Parse([]byte(idToken),
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, err
	}

	iss := token.Issuer()
	if iss != "https://accounts.google.com" && iss != "accounts.google.com" {
		return nil, fmt.Errorf("invalid token issuer: %s", iss)
	}

	if s.clientID != "" {
		audOK := false
		for _, aud := range token.Audience() {
			if aud == s.clientID {
				audOK = true
				break
			}
		}
		if !audOK {
			return nil, errors.New("invalid token audience")
		}
	}

	claims := token.PrivateClaims()
	info := &GoogleTokenInfo{
		Sub:     token.Subject(),
		Email:   stringClaim(claims, "email"),
		Name:    stringClaim(claims, "name"),
		Picture: stringClaim(claims, "picture"),
	}
	switch v := claims["email_verified"].(type) {
	case bool:
		info.EmailVerified = v
	case string:
		info.EmailVerified = v == "true"
	}
	return info, nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
