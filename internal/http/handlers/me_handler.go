// Merchant introspection handler.
//
// GET /me returns the authenticated merchant and API key metadata so
// integrators can confirm which credential and account a token resolves to
// without making a billable call.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-payments-backend/internal/http/middleware"
)

// MeResponse describes the authenticated credential and its merchant.
type MeResponse struct {
	MerchantID   string     `json:"merchant_id"`
	MerchantName string     `json:"merchant_name"`
	APIKeyID     string     `json:"api_key_id"`
	APIKeyName   string     `json:"api_key_name"`
	KeyPrefix    string     `json:"key_prefix"`
	Role         string     `json:"role"`
	Scopes       string     `json:"scopes,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// Me handles GET /me.
func (h *Handlers) Me(c *gin.Context) {
	key := middleware.APIKeyFrom(c)
	if key == nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}
	ok(c, http.StatusOK, MeResponse{
		MerchantID:   key.MerchantID,
		MerchantName: key.Merchant.Name,
		APIKeyID:     key.ID,
		APIKeyName:   key.Name,
		KeyPrefix:    key.KeyPrefix,
		Role:         key.Role,
		Scopes:       key.Scopes,
		LastUsedAt:   key.LastUsedAt,
	})
}
