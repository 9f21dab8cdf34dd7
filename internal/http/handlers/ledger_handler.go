// Ledger HTTP handlers.
//
// This file exposes the balance projection and the direct journal surface:
//   - GET  /balance                      (derived balances)
//   - POST /journal_entries              (direct posting, idempotent)
//   - GET  /journal_entries/{id}         (fetch with lines)
//   - GET  /journal_entries/{id}/verify  (independent balance audit)
//
// The verify endpoint re-derives an entry's totals from its stored lines and
// is intentionally independent of the posting path, so corruption introduced
// by out-of-band writes is still detectable.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-payments-backend/internal/services"
)

// JournalLineRequest is one movement in a direct posting request.
type JournalLineRequest struct {
	// AccountID is the ledger account the movement applies to.
	AccountID string `json:"account_id"`
	// Direction is DEBIT or CREDIT.
	Direction string `json:"direction"`
	// Amount is a strictly positive integer in minor units.
	Amount int64 `json:"amount"`
}

// PostJournalEntryRequest is the JSON payload for direct journal posting.
type PostJournalEntryRequest struct {
	Reference   *string              `json:"reference,omitempty"`
	Description *string              `json:"description,omitempty"`
	Lines       []JournalLineRequest `json:"lines"`
}

// VerifyJournalEntryResponse reports the audit outcome for an entry.
type VerifyJournalEntryResponse struct {
	EntryID     string `json:"entry_id"`
	Balanced    bool   `json:"balanced"`
	DebitTotal  int64  `json:"debit_total"`
	CreditTotal int64  `json:"credit_total"`
}

// GetBalance handles GET /balance. Balances are derived from the posted line
// history on every read; nothing is cached or stored.
func (h *Handlers) GetBalance(c *gin.Context) {
	balances, err := h.ledgerSvc.MerchantBalances(c.Request.Context(), merchantID(c))
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, balances)
}

// PostJournalEntry handles POST /journal_entries. Posting runs under the
// idempotency coordinator so a retried post cannot double-book.
func (h *Handlers) PostJournalEntry(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unable to read request body")
		return
	}

	var req PostJournalEntryRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	mid := merchantID(c)

	h.runIdempotent(c, rawBody, func(ctx context.Context) (*services.Response, error) {
		lines := make([]services.LedgerLineInput, 0, len(req.Lines))
		for _, l := range req.Lines {
			lines = append(lines, services.LedgerLineInput{
				AccountID: l.AccountID,
				Direction: l.Direction,
				Amount:    l.Amount,
			})
		}
		entry, err := h.ledgerSvc.PostJournalEntry(ctx, mid, services.PostJournalEntryInput{
			Reference:   req.Reference,
			Description: req.Description,
			Lines:       lines,
		})
		if err != nil {
			return nil, err
		}
		return jsonResponse(http.StatusCreated, entry)
	})
}

// GetJournalEntry handles GET /journal_entries/:id.
func (h *Handlers) GetJournalEntry(c *gin.Context) {
	entry, err := h.ledgerSvc.GetJournalEntry(c.Request.Context(), merchantID(c), c.Param("id"))
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, entry)
}

// VerifyJournalEntry handles GET /journal_entries/:id/verify. A balanced
// entry returns 200 with both totals; an unbalanced one returns 422 with the
// ledger_invariant_violation code so monitors can alert on it.
func (h *Handlers) VerifyJournalEntry(c *gin.Context) {
	id := c.Param("id")
	totals, err := h.ledgerSvc.AssertJournalEntryBalanced(c.Request.Context(), merchantID(c), id)
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, VerifyJournalEntryResponse{
		EntryID:     id,
		Balanced:    true,
		DebitTotal:  totals.DebitTotal,
		CreditTotal: totals.CreditTotal,
	})
}
