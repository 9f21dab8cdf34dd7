// Payment intent HTTP handlers.
//
// This file exposes REST endpoints for the payment intent lifecycle:
//   - POST /payment_intents              (create, idempotent)
//   - GET  /payment_intents/{id}         (fetch)
//   - POST /payment_intents/{id}/capture (capture, idempotent)
//
// Handlers are transport-thin: they validate input, hand the unit of work to
// the idempotent execution coordinator, and translate results into HTTP
// responses. Replayed responses are byte-identical to the original and marked
// with the X-Idempotent-Replayed header.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-payments-backend/internal/domain"
	"github.com/tbourn/go-payments-backend/internal/http/middleware"
	"github.com/tbourn/go-payments-backend/internal/services"
	"github.com/tbourn/go-payments-backend/internal/utils"
)

// HeaderIdempotentReplayed marks a response that was served from a prior
// execution rather than produced by running the operation again.
const HeaderIdempotentReplayed = "X-Idempotent-Replayed"

//
// Service contracts (context-aware)
//

// CustomerService defines customer operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CustomerService interface {
	// Create inserts a new customer owned by the merchant.
	Create(ctx context.Context, merchantID string, in services.CreateCustomerInput) (*domain.Customer, error)
	// Get fetches a customer within the merchant scope.
	Get(ctx context.Context, merchantID, id string) (*domain.Customer, error)
	// ListPage returns a page of the merchant's customers and the total count.
	ListPage(ctx context.Context, merchantID string, page, pageSize int) ([]domain.Customer, int64, error)
}

// PaymentIntentService defines payment intent lifecycle operations.
type PaymentIntentService interface {
	// Create validates and persists a new intent plus its webhook deliveries.
	Create(ctx context.Context, merchantID string, in services.CreatePaymentIntentInput) (*domain.PaymentIntent, error)
	// Get fetches an intent within the merchant scope.
	Get(ctx context.Context, merchantID, id string) (*domain.PaymentIntent, error)
	// Capture flips an intent to captured and posts the booking journal entry.
	Capture(ctx context.Context, merchantID, id string) (*domain.PaymentIntent, *domain.JournalEntry, error)
}

// LedgerService defines posting, audit, and balance projection operations.
type LedgerService interface {
	// PostJournalEntry validates and atomically persists a balanced entry.
	PostJournalEntry(ctx context.Context, merchantID string, in services.PostJournalEntryInput) (*domain.JournalEntry, error)
	// GetJournalEntry fetches an entry with its lines.
	GetJournalEntry(ctx context.Context, merchantID, entryID string) (*domain.JournalEntry, error)
	// AssertJournalEntryBalanced re-derives an entry's totals from storage.
	AssertJournalEntryBalanced(ctx context.Context, merchantID, entryID string) (services.JournalTotals, error)
	// MerchantBalances projects the well-known accounts into a balances view.
	MerchantBalances(ctx context.Context, merchantID string) (services.MerchantBalances, error)
}

// IdempotentExecutor coordinates at-most-once execution of mutating
// operations keyed by the client-supplied Idempotency-Key.
type IdempotentExecutor interface {
	Execute(ctx context.Context, req services.Request, merchantID, route string, fn services.UnitOfWork) (*services.Response, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for customers, payment intents, the ledger,
// and merchant introspection. It depends on abstract service interfaces to
// keep transport concerns separate from business logic.
type Handlers struct {
	custSvc   CustomerService
	intentSvc PaymentIntentService
	ledgerSvc LedgerService
	idemSvc   IdempotentExecutor
}

// New constructs and returns a Handlers instance bound to the given services.
func New(custSvc CustomerService, intentSvc PaymentIntentService, ledgerSvc LedgerService, idemSvc IdempotentExecutor) *Handlers {
	return &Handlers{custSvc: custSvc, intentSvc: intentSvc, ledgerSvc: ledgerSvc, idemSvc: idemSvc}
}

// merchantID extracts the authenticated merchant id from Gin context (set by
// the auth middleware). The identity comes exclusively from the verified API
// key; request headers are never consulted, so a route accidentally mounted
// without auth scopes every query to the empty tenant and matches nothing.
func merchantID(c *gin.Context) string {
	if id, ok := middleware.MerchantID(c); ok {
		return id
	}
	return ""
}

//
// DTOs
//

// CreatePaymentIntentRequest is the JSON payload for creating an intent.
type CreatePaymentIntentRequest struct {
	// Amount is the gross amount in minor units (e.g., cents); must be > 0.
	Amount int64 `json:"amount"`
	// Currency is a three-letter ISO 4217 code (e.g., "USD").
	Currency string `json:"currency"`
	// CustomerID optionally links the intent to an existing customer.
	CustomerID *string `json:"customer_id,omitempty"`
	// PaymentMethodToken references the tokenized payment instrument.
	PaymentMethodToken string `json:"payment_method_token"`
	// Metadata is an opaque JSON document stored verbatim.
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// CaptureResponse wraps the captured intent and the journal entry that
// booked its funds.
type CaptureResponse struct {
	PaymentIntent *domain.PaymentIntent `json:"payment_intent"`
	JournalEntry  *domain.JournalEntry  `json:"journal_entry"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// runIdempotent hands fn to the coordinator with the request's method, raw
// body, and idempotency key, then writes the coordinator's response verbatim.
// Replays are byte-identical and flagged via X-Idempotent-Replayed.
func (h *Handlers) runIdempotent(c *gin.Context, rawBody []byte, fn services.UnitOfWork) {
	key, _ := middleware.GetIdempotencyKey(c)
	if key == "" {
		key = c.GetHeader(middleware.HeaderIdempotencyKey)
	}
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}

	resp, err := h.idemSvc.Execute(c.Request.Context(), services.Request{
		Method:         c.Request.Method,
		Body:           string(rawBody),
		IdempotencyKey: key,
	}, merchantID(c), route, fn)
	if err != nil {
		failFromError(c, err)
		return
	}

	if resp.Replayed {
		c.Header(HeaderIdempotentReplayed, "true")
	}
	c.Data(resp.StatusCode, resp.ContentType, resp.Body)
}

// failFromError maps service-layer errors onto the HTTP error taxonomy.
func failFromError(c *gin.Context, err error) {
	var inv *services.LedgerInvariantError
	switch {
	case errors.Is(err, services.ErrMissingIdempotencyKey):
		fail(c, http.StatusBadRequest, ErrCodeIdempotencyKeyRequired, "Idempotency-Key header is required for this operation")
	case errors.Is(err, services.ErrIdempotencyKeyConflict):
		fail(c, http.StatusConflict, ErrCodeIdempotencyKeyConflict, "idempotency key reused with a different request payload")
	case errors.Is(err, services.ErrInvalidAmount):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount must be a positive integer in minor units")
	case errors.Is(err, services.ErrInvalidCurrency):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "currency must be a valid ISO 4217 code")
	case errors.Is(err, services.ErrCustomerNotFound):
		fail(c, http.StatusNotFound, ErrCodeCustomerNotFound, "customer not found")
	case errors.Is(err, services.ErrPaymentIntentNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "payment intent not found")
	case errors.Is(err, services.ErrJournalEntryNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "journal entry not found")
	case errors.Is(err, services.ErrIntentNotCapturable):
		fail(c, http.StatusConflict, ErrCodeIntentNotCapturable, "payment intent is not in a capturable state")
	case errors.As(err, &inv):
		fail(c, http.StatusUnprocessableEntity, ErrCodeLedgerInvariant, inv.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// jsonResponse marshals body into a coordinator response with the given
// status. Marshal failures surface as errors so the record stays PENDING.
func jsonResponse(status int, body any) (*services.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &services.Response{
		StatusCode:  status,
		Body:        b,
		ContentType: "application/json",
	}, nil
}

//
// Handlers
//

// CreatePaymentIntent handles POST /payment_intents. The whole operation runs
// under the idempotency coordinator: retried requests with the same key get
// the original response back without re-charging.
func (h *Handlers) CreatePaymentIntent(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unable to read request body")
		return
	}

	var req CreatePaymentIntentRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.PaymentMethodToken) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payment_method_token is required")
		return
	}

	mid := merchantID(c)
	key, _ := middleware.GetIdempotencyKey(c)
	if key == "" {
		key = c.GetHeader(middleware.HeaderIdempotencyKey)
	}

	h.runIdempotent(c, rawBody, func(ctx context.Context) (*services.Response, error) {
		intent, err := h.intentSvc.Create(ctx, mid, services.CreatePaymentIntentInput{
			Amount:             req.Amount,
			Currency:           req.Currency,
			CustomerID:         req.CustomerID,
			PaymentMethodToken: req.PaymentMethodToken,
			Metadata:           string(req.Metadata),
			IdempotencyKey:     key,
		})
		if err != nil {
			return nil, err
		}
		return jsonResponse(http.StatusCreated, intent)
	})
}

// GetPaymentIntent handles GET /payment_intents/:id.
func (h *Handlers) GetPaymentIntent(c *gin.Context) {
	intent, err := h.intentSvc.Get(c.Request.Context(), merchantID(c), c.Param("id"))
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, intent)
}

// CapturePaymentIntent handles POST /payment_intents/:id/capture. Capture is
// idempotent: a retried capture with the same key replays the original
// response instead of double-posting the journal entry.
func (h *Handlers) CapturePaymentIntent(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unable to read request body")
		return
	}

	mid := merchantID(c)
	id := c.Param("id")

	h.runIdempotent(c, rawBody, func(ctx context.Context) (*services.Response, error) {
		intent, entry, err := h.intentSvc.Capture(ctx, mid, id)
		if err != nil {
			return nil, err
		}
		return jsonResponse(http.StatusOK, CaptureResponse{
			PaymentIntent: intent,
			JournalEntry:  entry,
		})
	})
}
