package controllers

import (
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/commonroom/commonroom_backend/middleware"
	"github.com/commonroom/commonroom_backend/models"
	"github.com/commonroom/commonroom_backend/repositories"
	"github.com/commonroom/commonroom_backend/services"
	"github.com/commonroom/commonroom_backend/utils"
)

const (
	maxLoginAttempts   = 5
	loginAttemptWindow = 15 * time.Minute
)

// AuthController contains authentication logic
type AuthController struct {
	DB            *mongo.Client
	users         *repositories.UserRepository
	google        *services.GoogleAuthService
	logger        *log.Logger
	loginAttempts map[string]struct {
		count       int
		lastAttempt time.Time
	}
	loginAttemptsMu sync.RWMutex
}

// NewAuthController creates a new auth controller
func NewAuthController(db *mongo.Client) *AuthController {
	ac := &AuthController{
		DB:     db,
		users:  repositories.NewUserRepository(db),
		google: services.NewGoogleAuthService(db, os.Getenv("GOOGLE_OAUTH_CLIENT_ID")),
		logger: log.New(os.Stdout, "[AUTH] ", log.LstdFlags),
		loginAttempts: make(map[string]struct {
			count       int
			lastAttempt time.Time
		}),
	}

	go ac.startLoginAttemptCleanupRoutine()

	return ac
}

func (ac *AuthController) startLoginAttemptCleanupRoutine() {
	for {
		time.Sleep(loginAttemptWindow)
		now := time.Now()
		ac.loginAttemptsMu.Lock()
		for email, attempt := range ac.loginAttempts {
			if now.Sub(attempt.lastAttempt) > loginAttemptWindow {
				delete(ac.loginAttempts, email)
			}
		}
		ac.loginAttemptsMu.Unlock()
	}
}

func (ac *AuthController) tooManyAttempts(email string) bool {
	ac.loginAttemptsMu.RLock()
	defer ac.loginAttemptsMu.RUnlock()
	attempt, ok := ac.loginAttempts[email]
	return ok && attempt.count >= maxLoginAttempts && time.Since(attempt.lastAttempt) < loginAttemptWindow
}

func (ac *AuthController) recordAttempt(email string, failed bool) {
	ac.loginAttemptsMu.Lock()
	defer ac.loginAttemptsMu.Unlock()
	if !failed {
		delete(ac.loginAttempts, email)
		return
	}
	attempt := ac.loginAttempts[email]
	attempt.count++
	attempt.lastAttempt = time.Now()
	ac.loginAttempts[email] = attempt
}

// Signup creates a new user account
func (ac *AuthController) Signup(c echo.Context) error {
	var req models.SignupRequest
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

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to process password",
		})
	}

	user, err := ac.users.Create(c.Request().Context(), models.User{
		Email:    req.Email,
		Password: string(hashed),
		FullName: req.FullName,
		Role:     "user",
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "An account with this email already exists",
			})
		}
		ac.logger.Printf("signup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create account",
		})
	}

	token, refreshToken, err := middleware.GenerateJWT(user.ID.Hex(), user.Email, user.Role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate token",
		})
	}

	user.Password = ""
	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Account created",
		Data: models.LoginResponse{
			Token:        token,
			RefreshToken: refreshToken,
			User:         *user,
		},
	})
}

// Login authenticates a user with email and password
func (ac *AuthController) Login(c echo.Context) error {
	var req models.LoginRequest
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

	if ac.tooManyAttempts(req.Email) {
		return c.JSON(http.StatusTooManyRequests, models.Response{
			Status:  http.StatusTooManyRequests,
			Message: "Too many failed login attempts. Try again later.",
		})
	}

	user, err := ac.users.FindByEmail(c.Request().Context(), req.Email)
	if err != nil {
		ac.recordAttempt(req.Email, true)
		if errors.Is(err, repositories.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, models.Response{
				Status:  http.StatusUnauthorized,
				Message: "Invalid email or password",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Login failed",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		ac.recordAttempt(req.Email, true)
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid email or password",
		})
	}
	ac.recordAttempt(req.Email, false)

	if !user.IsActive {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Account is inactive",
		})
	}

	token, refreshToken, err := middleware.GenerateJWT(user.ID.Hex(), user.Email, user.Role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate token",
		})
	}

	user.Password = ""
	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Login successful",
		Data: models.LoginResponse{
			Token:        token,
			RefreshToken: refreshToken,
			User:         *user,
		},
	})
}

// GoogleLogin signs a user in with a Google ID token
func (ac *AuthController) GoogleLogin(c echo.Context) error {
	var req struct {
		IDToken string `json:"idToken" validate:"required"`
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

	data, err := ac.google.AuthenticateUser(c.Request().Context(), req.IDToken)
	if err != nil {
		ac.logger.Printf("google login failed: %v", err)
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Google authentication failed",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Login successful",
		Data:    data,
	})
}

// Logout blacklists the current token
func (ac *AuthController) Logout(c echo.Context) error {
	claims := middleware.GetUserFromToken(c)
	authHeader := c.Request().Header.Get("Authorization")
	if claims != nil && len(authHeader) > 7 {
		expiry := time.Now().Add(24 * time.Hour)
		if claims.ExpiresAt > 0 {
			expiry = time.Unix(claims.ExpiresAt, 0)
		}
		middleware.BlacklistToken(authHeader[7:], expiry)
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Logged out",
	})
}

// ValidateSession checks whether the provided token is still valid
func (ac *AuthController) ValidateSession(c echo.Context) error {
	result, err := utils.ValidateTokenFromHeader(c.Request().Header.Get("Authorization"), ac.DB)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Validation failed",
		})
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnauthorized
	}
	return c.JSON(status, models.Response{
		Status:  status,
		Message: result.Message,
		Data:    result,
	})
}

// UpdateFCMToken stores the caller's device token for push notifications
func (ac *AuthController) UpdateFCMToken(c echo.Context) error {
	userID, err := middleware.ExtractUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid token",
		})
	}

	var req struct {
		FCMToken string `json:"fcmToken" validate:"required"`
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

	if err := ac.users.UpdateFCMToken(c.Request().Context(), userID, req.FCMToken); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update FCM token",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "FCM token updated",
	})
}
