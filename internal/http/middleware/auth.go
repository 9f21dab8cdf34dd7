// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements API-key authentication. Clients present a bearer
// token; only its SHA-256 hash is ever stored or compared, so a database
// leak does not expose usable credentials. On success the merchant identity
// and key metadata are stashed in the Gin context for downstream handlers,
// the rate limiter, and the idempotency layer.
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-payments-backend/internal/domain"
	"github.com/tbourn/go-payments-backend/internal/repo"
)

// Context keys for the authenticated identity.
const (
	ctxKeyMerchantID = "merchantID"
	ctxKeyAPIKeyID   = "apiKeyID"
	ctxKeyAPIKey     = "apiKey"
)

// HashAPIKey returns the hex SHA-256 digest of a raw API key. The same
// function is used at issuance time and at verification time.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// MerchantID returns the authenticated merchant id from the Gin context.
// The second return value indicates presence.
func MerchantID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyMerchantID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// APIKeyID returns the authenticated API key id from the Gin context.
func APIKeyID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyAPIKeyID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// APIKeyFrom returns the full authenticated API key row (with its Merchant
// preloaded) from the Gin context, or nil when unauthenticated.
func APIKeyFrom(c *gin.Context) *domain.APIKey {
	v, ok := c.Get(ctxKeyAPIKey)
	if !ok {
		return nil
	}
	k, _ := v.(*domain.APIKey)
	return k
}

// parseBearerToken extracts the token from an Authorization header of the
// form "Bearer <token>", returning "" when the header is absent or not a
// bearer scheme.
func parseBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// APIKeyAuth returns a Gin middleware that authenticates requests by API
// key. Behavior:
//
//   - No bearer token: 401 with code "auth_required".
//   - Unknown or inactive key: 401 with code "invalid_api_key".
//   - Success: merchant id, api key id, and the key row are stashed in the
//     context, and last_used_at is touched best-effort (a failed touch never
//     fails the request).
func APIKeyAuth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := parseBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "auth_required",
				"message":    "Authorization bearer token is required",
			})
			return
		}

		key, err := repo.FindActiveAPIKeyByHash(c.Request.Context(), db, HashAPIKey(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "invalid_api_key",
				"message":    "invalid API key",
			})
			return
		}

		c.Set(ctxKeyMerchantID, key.MerchantID)
		c.Set(ctxKeyAPIKeyID, key.ID)
		c.Set(ctxKeyAPIKey, key)

		// Informational only; ignore failures.
		_ = repo.TouchAPIKeyLastUsed(c.Request.Context(), db, key.ID, time.Now().UTC())

		c.Next()
	}
}
