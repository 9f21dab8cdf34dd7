package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-payments-backend/internal/cache"
	"github.com/tbourn/go-payments-backend/internal/config"
	"github.com/tbourn/go-payments-backend/internal/domain"
	"github.com/tbourn/go-payments-backend/internal/http/handlers"
	"github.com/tbourn/go-payments-backend/internal/http/middleware"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Merchant{},
		&domain.APIKey{},
		&domain.Customer{},
		&domain.PaymentIntent{},
		&domain.WebhookEndpoint{},
		&domain.WebhookDelivery{},
		&domain.LedgerAccount{},
		&domain.JournalEntry{},
		&domain.LedgerLine{},
		&domain.IdempotencyRecord{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	cfg := config.Config{
		APIBasePath:    "/api/v1",
		IdempotencyTTL: time.Hour,
		RateRPS:        1000,
		RateBurst:      1000,
	}

	r := gin.New()
	RegisterRoutes(r, db, cache.NewMemory(), cfg)
	return r, db
}

func seedMerchantKey(t *testing.T, db *gorm.DB, merchantID, name, rawKey string) {
	t.Helper()
	m := &domain.Merchant{ID: merchantID, Name: name, Status: domain.MerchantStatusActive, CreatedAt: time.Now().UTC()}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed merchant: %v", err)
	}
	k := &domain.APIKey{
		ID:         merchantID + "-key",
		MerchantID: merchantID,
		Name:       "default",
		KeyHash:    middleware.HashAPIKey(rawKey),
		KeyPrefix:  "sk_test_",
		Role:       "standard",
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.Create(k).Error; err != nil {
		t.Fatalf("seed key: %v", err)
	}
}

func doJSON(r *gin.Engine, method, path, token, idemKey string, body string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set(middleware.HeaderIdempotencyKey, idemKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var e handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e
}

func TestRouter_HealthAndAuthGate(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/health", "", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/health = %d", w.Code)
	}

	// API routes demand a key.
	w = doJSON(r, http.MethodGet, "/api/v1/me", "", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /me = %d", w.Code)
	}
	if e := decodeErr(t, w); e.Code != "auth_required" {
		t.Fatalf("code = %q", e.Code)
	}
}

func TestRouter_MeReturnsIdentity(t *testing.T) {
	r, db := newTestRouter(t)
	seedMerchantKey(t, db, "m1", "Acme", "sk_test_m1")

	w := doJSON(r, http.MethodGet, "/api/v1/me", "sk_test_m1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("/me = %d, body = %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["merchant_id"] != "m1" {
		t.Fatalf("unexpected /me body: %v", body)
	}
}

func TestRouter_CreateIntentReplayAndConflict(t *testing.T) {
	r, db := newTestRouter(t)
	seedMerchantKey(t, db, "m1", "Acme", "sk_test_m1")

	body := `{"amount":5000,"currency":"USD","payment_method_token":"tok_visa"}`

	// Missing key on a mutating route.
	w := doJSON(r, http.MethodPost, "/api/v1/payment_intents", "sk_test_m1", "", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing key = %d, body = %s", w.Code, w.Body.String())
	}
	if e := decodeErr(t, w); e.Code != handlers.ErrCodeIdempotencyKeyRequired {
		t.Fatalf("code = %q", e.Code)
	}

	// First execution.
	w1 := doJSON(r, http.MethodPost, "/api/v1/payment_intents", "sk_test_m1", "order-001", body)
	if w1.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w1.Code, w1.Body.String())
	}
	if w1.Header().Get(handlers.HeaderIdempotentReplayed) != "" {
		t.Fatalf("first execution must not be flagged as replay")
	}

	// Retry with the same key: byte-identical body, flagged replay.
	w2 := doJSON(r, http.MethodPost, "/api/v1/payment_intents", "sk_test_m1", "order-001", body)
	if w2.Code != http.StatusCreated {
		t.Fatalf("replay = %d", w2.Code)
	}
	if w2.Header().Get(handlers.HeaderIdempotentReplayed) != "true" {
		t.Fatalf("replay header missing")
	}
	if !bytes.Equal(w1.Body.Bytes(), w2.Body.Bytes()) {
		t.Fatalf("replay body differs:\n%s\nvs\n%s", w1.Body.String(), w2.Body.String())
	}

	// Exactly one intent exists despite two requests.
	var count int64
	db.Model(&domain.PaymentIntent{}).Count(&count)
	if count != 1 {
		t.Fatalf("intents = %d; want 1", count)
	}

	// Same key, different payload: conflict.
	w3 := doJSON(r, http.MethodPost, "/api/v1/payment_intents", "sk_test_m1", "order-001",
		`{"amount":9999,"currency":"USD","payment_method_token":"tok_visa"}`)
	if w3.Code != http.StatusConflict {
		t.Fatalf("conflict = %d, body = %s", w3.Code, w3.Body.String())
	}
	if e := decodeErr(t, w3); e.Code != handlers.ErrCodeIdempotencyKeyConflict {
		t.Fatalf("code = %q", e.Code)
	}
}

func TestRouter_CaptureFlowAndBalance(t *testing.T) {
	r, db := newTestRouter(t)
	seedMerchantKey(t, db, "m1", "Acme", "sk_test_m1")

	w := doJSON(r, http.MethodPost, "/api/v1/payment_intents", "sk_test_m1", "order-cap",
		`{"amount":10000,"currency":"USD","payment_method_token":"tok_visa"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	var intent domain.PaymentIntent
	if err := json.Unmarshal(w.Body.Bytes(), &intent); err != nil {
		t.Fatalf("decode intent: %v", err)
	}

	capPath := "/api/v1/payment_intents/" + intent.ID + "/capture"
	w1 := doJSON(r, http.MethodPost, capPath, "sk_test_m1", "cap-001", "")
	if w1.Code != http.StatusOK {
		t.Fatalf("capture = %d, body = %s", w1.Code, w1.Body.String())
	}
	var capResp handlers.CaptureResponse
	if err := json.Unmarshal(w1.Body.Bytes(), &capResp); err != nil {
		t.Fatalf("decode capture: %v", err)
	}
	if capResp.PaymentIntent.Status != domain.PaymentIntentStatusCaptured {
		t.Fatalf("status = %q", capResp.PaymentIntent.Status)
	}
	if capResp.JournalEntry == nil || len(capResp.JournalEntry.Lines) != 3 {
		t.Fatalf("capture entry missing lines: %+v", capResp.JournalEntry)
	}

	// Replaying the capture does not double-book.
	w2 := doJSON(r, http.MethodPost, capPath, "sk_test_m1", "cap-001", "")
	if w2.Code != http.StatusOK || w2.Header().Get(handlers.HeaderIdempotentReplayed) != "true" {
		t.Fatalf("capture replay = %d, header = %q", w2.Code, w2.Header().Get(handlers.HeaderIdempotentReplayed))
	}
	if !bytes.Equal(w1.Body.Bytes(), w2.Body.Bytes()) {
		t.Fatalf("capture replay body differs")
	}

	// A genuinely new capture attempt is rejected.
	w3 := doJSON(r, http.MethodPost, capPath, "sk_test_m1", "cap-002", "")
	if w3.Code != http.StatusConflict {
		t.Fatalf("second capture = %d, body = %s", w3.Code, w3.Body.String())
	}
	if e := decodeErr(t, w3); e.Code != handlers.ErrCodeIntentNotCapturable {
		t.Fatalf("code = %q", e.Code)
	}

	// Balances reflect the fee split: 10000 at 290 bps.
	w = doJSON(r, http.MethodGet, "/api/v1/balance", "sk_test_m1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("balance = %d", w.Code)
	}
	var balances map[string]int64
	if err := json.Unmarshal(w.Body.Bytes(), &balances); err != nil {
		t.Fatalf("decode balances: %v", err)
	}
	if balances["pending"] != 9710 || balances["fees"] != 290 || balances["available"] != 0 {
		t.Fatalf("balances = %v", balances)
	}

	// The audit endpoint confirms the capture entry balances.
	w = doJSON(r, http.MethodGet, "/api/v1/journal_entries/"+capResp.JournalEntry.ID+"/verify", "sk_test_m1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("verify = %d, body = %s", w.Code, w.Body.String())
	}
	var verify handlers.VerifyJournalEntryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &verify); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	if !verify.Balanced || verify.DebitTotal != 10000 || verify.CreditTotal != 10000 {
		t.Fatalf("verify = %+v", verify)
	}

	// Exactly one journal entry was posted.
	var entries int64
	db.Model(&domain.JournalEntry{}).Count(&entries)
	if entries != 1 {
		t.Fatalf("journal entries = %d; want 1", entries)
	}
}

func TestRouter_TenantIsolation(t *testing.T) {
	r, db := newTestRouter(t)
	seedMerchantKey(t, db, "m1", "Acme", "sk_test_m1")
	seedMerchantKey(t, db, "m2", "Globex", "sk_test_m2")

	w := doJSON(r, http.MethodPost, "/api/v1/payment_intents", "sk_test_m1", "iso-001",
		`{"amount":100,"currency":"USD","payment_method_token":"tok"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	var intent domain.PaymentIntent
	if err := json.Unmarshal(w.Body.Bytes(), &intent); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// The other merchant cannot read or capture it.
	w = doJSON(r, http.MethodGet, "/api/v1/payment_intents/"+intent.ID, "sk_test_m2", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign get = %d", w.Code)
	}
	w = doJSON(r, http.MethodPost, "/api/v1/payment_intents/"+intent.ID+"/capture", "sk_test_m2", "iso-cap", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign capture = %d", w.Code)
	}

	// The same idempotency key is independent per merchant.
	w = doJSON(r, http.MethodPost, "/api/v1/payment_intents", "sk_test_m2", "iso-001",
		`{"amount":777,"currency":"USD","payment_method_token":"tok"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("m2 create with shared key = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRouter_Customers(t *testing.T) {
	r, db := newTestRouter(t)
	seedMerchantKey(t, db, "m1", "Acme", "sk_test_m1")

	w := doJSON(r, http.MethodPost, "/api/v1/customers", "sk_test_m1", "cust-001",
		`{"email":"jane@example.com","name":"Jane"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create customer = %d, body = %s", w.Code, w.Body.String())
	}
	var cust domain.Customer
	if err := json.Unmarshal(w.Body.Bytes(), &cust); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = doJSON(r, http.MethodGet, "/api/v1/customers/"+cust.ID, "sk_test_m1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get customer = %d", w.Code)
	}

	// An empty body creates an anonymous customer.
	w = doJSON(r, http.MethodPost, "/api/v1/customers", "sk_test_m1", "cust-anon", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("anonymous customer = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodGet, "/api/v1/customers?page=1&page_size=10", "sk_test_m1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list customers = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), cust.ID) {
		t.Fatalf("listing missing customer: %s", w.Body.String())
	}

	// Creating an intent against the customer works; an unknown customer 404s.
	w = doJSON(r, http.MethodPost, "/api/v1/payment_intents", "sk_test_m1", "cust-pi-001",
		fmt.Sprintf(`{"amount":100,"currency":"USD","payment_method_token":"tok","customer_id":%q}`, cust.ID))
	if w.Code != http.StatusCreated {
		t.Fatalf("intent with customer = %d, body = %s", w.Code, w.Body.String())
	}
	w = doJSON(r, http.MethodPost, "/api/v1/payment_intents", "sk_test_m1", "cust-pi-002",
		`{"amount":100,"currency":"USD","payment_method_token":"tok","customer_id":"nope"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("intent with unknown customer = %d", w.Code)
	}
}

func TestRouter_DirectJournalPosting(t *testing.T) {
	r, db := newTestRouter(t)
	seedMerchantKey(t, db, "m1", "Acme", "sk_test_m1")

	// Seed two accounts directly; account provisioning is an admin concern.
	a := &domain.LedgerAccount{ID: "acc-a", MerchantID: "m1", Code: "A", Name: "A", AccountType: domain.LedgerAccountTypeAsset, Currency: "USD", CreatedAt: time.Now().UTC()}
	b := &domain.LedgerAccount{ID: "acc-b", MerchantID: "m1", Code: "B", Name: "B", AccountType: domain.LedgerAccountTypeLiability, Currency: "USD", CreatedAt: time.Now().UTC()}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}

	balanced := `{"lines":[
		{"account_id":"acc-a","direction":"DEBIT","amount":1200},
		{"account_id":"acc-b","direction":"CREDIT","amount":1200}]}`
	w := doJSON(r, http.MethodPost, "/api/v1/journal_entries", "sk_test_m1", "je-001", balanced)
	if w.Code != http.StatusCreated {
		t.Fatalf("post entry = %d, body = %s", w.Code, w.Body.String())
	}
	var entry domain.JournalEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = doJSON(r, http.MethodGet, "/api/v1/journal_entries/"+entry.ID, "sk_test_m1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get entry = %d", w.Code)
	}

	// Unbalanced posting is rejected with 422 and both totals in the message.
	unbalanced := `{"lines":[
		{"account_id":"acc-a","direction":"DEBIT","amount":1200},
		{"account_id":"acc-b","direction":"CREDIT","amount":1100}]}`
	w = doJSON(r, http.MethodPost, "/api/v1/journal_entries", "sk_test_m1", "je-002", unbalanced)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unbalanced = %d, body = %s", w.Code, w.Body.String())
	}
	if e := decodeErr(t, w); e.Code != handlers.ErrCodeLedgerInvariant {
		t.Fatalf("code = %q", e.Code)
	}
}

func TestRouter_FallbacksAndHeaders(t *testing.T) {
	r, db := newTestRouter(t)
	seedMerchantKey(t, db, "m1", "Acme", "sk_test_m1")

	w := doJSON(r, http.MethodGet, "/nope", "", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("no route = %d", w.Code)
	}
	if e := decodeErr(t, w); e.Code != handlers.ErrCodeNotFound {
		t.Fatalf("code = %q", e.Code)
	}

	w = doJSON(r, http.MethodDelete, "/health", "", "", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("no method = %d", w.Code)
	}

	// Every response carries a request id and rate-limit headers on API routes.
	w = doJSON(r, http.MethodGet, "/api/v1/me", "sk_test_m1", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
	if w.Header().Get("X-RateLimit-Limit") == "" || w.Header().Get("X-RateLimit-Remaining") == "" {
		t.Fatalf("missing rate-limit headers: %v", w.Header())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers: %v", w.Header())
	}
}

func TestRouter_MalformedIdempotencyKeyRejected(t *testing.T) {
	r, db := newTestRouter(t)
	seedMerchantKey(t, db, "m1", "Acme", "sk_test_m1")

	w := doJSON(r, http.MethodPost, "/api/v1/payment_intents", "sk_test_m1", strings.Repeat("x", 201),
		`{"amount":100,"currency":"USD","payment_method_token":"tok"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized key = %d", w.Code)
	}
	if e := decodeErr(t, w); e.Code != "bad_idempotency_key" {
		t.Fatalf("code = %q", e.Code)
	}
}
