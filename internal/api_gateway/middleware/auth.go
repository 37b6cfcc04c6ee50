package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AccountIDKey is the key used to store the authenticated account id in the context
const AccountIDKey = "account_id"

// TokenVerifier resolves a bearer token to the account it was issued for
type TokenVerifier interface {
	Authenticate(token string) (uuid.UUID, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// token's account id for the handlers behind it
func Authenticate(verifier TokenVerifier, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, "Missing bearer token")
			return
		}

		accountID, err := verifier.Authenticate(strings.TrimSpace(token))
		if err != nil {
			logger.Warn("Rejected session token",
				"correlation_id", GetCorrelationID(c),
				"path", c.Request.URL.Path,
				"error", err,
			)
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(AccountIDKey, accountID)
		c.Next()
	}
}

// GetAccountID retrieves the authenticated account id set by Authenticate
func GetAccountID(c *gin.Context) (uuid.UUID, bool) {
	if v, exists := c.Get(AccountIDKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

func abortUnauthorized(c *gin.Context, message string) {
	response := gin.H{
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, response)
}
