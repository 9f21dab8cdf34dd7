package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-payments-backend/internal/domain"
)

func newMWDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedAuthKey(t *testing.T, db *gorm.DB, rawKey string, active bool) {
	t.Helper()
	m := &domain.Merchant{ID: "m1", Name: "Acme", Status: domain.MerchantStatusActive, CreatedAt: time.Now().UTC()}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed merchant: %v", err)
	}
	k := &domain.APIKey{
		ID:         "key1",
		MerchantID: "m1",
		Name:       "default",
		KeyHash:    HashAPIKey(rawKey),
		KeyPrefix:  rawKey[:7],
		Role:       "standard",
		IsActive:   active,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.Create(k).Error; err != nil {
		t.Fatalf("seed key: %v", err)
	}
}

func authProbe(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyAuth(db))
	r.GET("/probe", func(c *gin.Context) {
		mid, _ := MerchantID(c)
		kid, _ := APIKeyID(c)
		key := APIKeyFrom(c)
		c.JSON(http.StatusOK, gin.H{
			"merchant_id":   mid,
			"api_key_id":    kid,
			"merchant_name": key.Merchant.Name,
		})
	})
	return r
}

func TestHashAPIKey(t *testing.T) {
	h := HashAPIKey("sk_test_abc")
	if len(h) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h))
	}
	if h != HashAPIKey("sk_test_abc") {
		t.Fatalf("hash must be deterministic")
	}
	if h == HashAPIKey("sk_test_abd") {
		t.Fatalf("different keys must hash differently")
	}
}

func TestAPIKeyAuth_MissingToken(t *testing.T) {
	db := newMWDB(t, &domain.Merchant{}, &domain.APIKey{})
	r := authProbe(db)

	for _, header := range []string{"", "Basic dXNlcg==", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d; want 401", header, w.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["code"] != "auth_required" {
			t.Fatalf("header %q: code = %q; want auth_required", header, body["code"])
		}
	}
}

func TestAPIKeyAuth_UnknownOrInactiveKey(t *testing.T) {
	db := newMWDB(t, &domain.Merchant{}, &domain.APIKey{})
	seedAuthKey(t, db, "sk_test_valid", false) // inactive
	r := authProbe(db)

	for _, token := range []string{"sk_test_unknown", "sk_test_valid"} {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d; want 401", token, w.Code)
		}
		var body map[string]string
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		if body["code"] != "invalid_api_key" {
			t.Fatalf("token %q: code = %q; want invalid_api_key", token, body["code"])
		}
	}
}

func TestAPIKeyAuth_SuccessStashesIdentity(t *testing.T) {
	db := newMWDB(t, &domain.Merchant{}, &domain.APIKey{})
	seedAuthKey(t, db, "sk_test_valid", true)
	r := authProbe(db)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "bearer sk_test_valid") // scheme is case-insensitive
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["merchant_id"] != "m1" || body["api_key_id"] != "key1" || body["merchant_name"] != "Acme" {
		t.Fatalf("unexpected identity: %+v", body)
	}

	// Authentication touches last_used_at best-effort.
	var key domain.APIKey
	if err := db.First(&key, "id = ?", "key1").Error; err != nil {
		t.Fatalf("reload key: %v", err)
	}
	if key.LastUsedAt == nil {
		t.Fatalf("last_used_at not touched")
	}
}
