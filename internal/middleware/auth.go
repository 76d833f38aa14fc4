// Package middleware contains gin middleware for sessions and request logging.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/models"
	"github.com/squigly/coach-api/pkg/logger"
)

const (
	headerAuth   = "Authorization"
	bearerPrefix = "Bearer "
	userIDKey    = "session.userID"
)

// SessionAuth verifies Supabase access tokens: HS256 JWTs whose subject is the
// user's UUID.
type SessionAuth struct {
	secret   []byte
	audience string
	parser   *jwt.Parser
}

// NewSessionAuth creates a new SessionAuth. An empty audience skips the
// audience check.
func NewSessionAuth(secret, audience string) *SessionAuth {
	return &SessionAuth{
		secret:   []byte(secret),
		audience: audience,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Middleware rejects requests without a valid session with 401 and stores the
// user id for handlers.
func (a *SessionAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := a.authenticate(c.GetHeader(headerAuth))
		if err != nil {
			logger.L().Warn("Unauthorized request",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("reason", err.Error()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Status:    http.StatusUnauthorized,
				Error:     "Unauthorized",
				Message:   "A valid session is required",
				Timestamp: time.Now(),
				Path:      c.Request.URL.Path,
			})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (a *SessionAuth) authenticate(header string) (uuid.UUID, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return uuid.Nil, errMissingToken
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if raw == "" {
		return uuid.Nil, errMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}); err != nil {
		return uuid.Nil, err
	}

	if a.audience != "" && !claims.VerifyAudience(a.audience, true) {
		return uuid.Nil, errWrongAudience
	}

	return uuid.Parse(claims.Subject)
}

// UserID returns the session user stored by SessionAuth.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// SetUserID stores a session user. Tests use it to bypass token parsing.
func SetUserID(c *gin.Context, userID uuid.UUID) {
	c.Set(userIDKey, userID)
}
