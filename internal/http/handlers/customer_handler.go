// Customer HTTP handlers.
//
// This file exposes REST endpoints for customer resources:
//   - POST /customers       (create)
//   - GET  /customers       (list, paginated)
//   - GET  /customers/{id}  (fetch)
//
// All operations are merchant-scoped: a customer is only ever visible to the
// merchant that created it.
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-payments-backend/internal/domain"
	"github.com/tbourn/go-payments-backend/internal/services"
)

// CreateCustomerRequest is the JSON payload for creating a customer. All
// fields are optional; an empty body creates an anonymous customer.
type CreateCustomerRequest struct {
	ExternalID *string         `json:"external_id,omitempty"`
	Email      *string         `json:"email,omitempty"`
	Name       *string         `json:"name,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// ListCustomersResponse wraps a page of customers and pagination information.
type ListCustomersResponse struct {
	Customers  []domain.Customer `json:"customers"`
	Pagination Pagination        `json:"pagination"`
}

// CreateCustomer handles POST /customers.
func (h *Handlers) CreateCustomer(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unable to read request body")
		return
	}

	// An empty body is allowed; it creates an anonymous customer.
	var req CreateCustomerRequest
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	if req.Email != nil && !strings.Contains(*req.Email, "@") {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email is not valid")
		return
	}

	cust, err := h.custSvc.Create(c.Request.Context(), merchantID(c), services.CreateCustomerInput{
		ExternalID: req.ExternalID,
		Email:      req.Email,
		Name:       req.Name,
		Metadata:   string(req.Metadata),
	})
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusCreated, cust)
}

// ListCustomers handles GET /customers with page/page_size query params.
func (h *Handlers) ListCustomers(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.custSvc.ListPage(c.Request.Context(), merchantID(c), page, pageSize)
	if err != nil {
		failFromError(c, err)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListCustomersResponse{
		Customers: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetCustomer handles GET /customers/:id.
func (h *Handlers) GetCustomer(c *gin.Context) {
	cust, err := h.custSvc.Get(c.Request.Context(), merchantID(c), c.Param("id"))
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, cust)
}
