package api

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/sykell/product-scraper/internal/apperr"
	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/service"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginResponse represents the login response payload
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret     string
	TokenDuration time.Duration
	// Disabled lets unauthenticated requests reach the API.
	Disabled bool
}

// NewAuthConfig creates a new auth configuration
func NewAuthConfig(logger *zap.Logger) *AuthConfig {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Warn("JWT_SECRET not set, using default secret")
		secret = "changeme"
	}

	duration := 24 * time.Hour
	if durationStr := os.Getenv("JWT_DURATION"); durationStr != "" {
		if parsed, err := time.ParseDuration(durationStr); err == nil {
			duration = parsed
		}
	}

	return &AuthConfig{
		JWTSecret:     secret,
		TokenDuration: duration,
		Disabled:      strings.EqualFold(os.Getenv("AUTH_DISABLED"), "true"),
	}
}

// IssueToken signs a token for user valid for the configured duration
func IssueToken(config *AuthConfig, user *db.User, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(config.TokenDuration)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      expiresAt.Unix(),
		"iat":      now.Unix(),
	})

	tokenStr, err := token.SignedString([]byte(config.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenStr, expiresAt, nil
}

// LoginHandler handles reviewer authentication
func LoginHandler(dbConn *gorm.DB, config *AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperr.FromBinding(err))
			return
		}

		// Sanitize input
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" {
			respondError(c, apperr.Validation("Username cannot be empty"))
			return
		}

		// Get user from database
		user, err := service.GetUserByUsername(dbConn.WithContext(c.Request.Context()), req.Username)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.Warn("login attempt with unknown username", zap.String("username", req.Username))
				respondError(c, apperr.New(apperr.CodeUnauthorized, "Invalid credentials"))
				return
			}
			respondError(c, err)
			return
		}

		// Verify password
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			logger.Warn("failed login attempt", zap.String("username", req.Username))
			respondError(c, apperr.New(apperr.CodeUnauthorized, "Invalid credentials"))
			return
		}

		tokenStr, expiresAt, err := IssueToken(config, user, time.Now())
		if err != nil {
			respondError(c, err)
			return
		}

		logger.Info("successful login", zap.String("username", user.Username))
		c.JSON(http.StatusOK, LoginResponse{
			Token:     tokenStr,
			ExpiresAt: expiresAt,
			UserID:    user.ID,
			Username:  user.Username,
		})
	}
}
