// Package services – LedgerService
//
// This file implements the double-entry ledger engine: validation and
// atomic persistence of balanced journal entries, an independent audit
// primitive, and the balance projector that derives account balances by
// summing posted lines.
//
// Balances are never stored. A merchant's available, pending, and fee
// balances are recomputed from the immutable line history on every read,
// which trades O(lines) read cost for the guarantee that balances can never
// drift from the journal. Callers needing low-latency reads should layer a
// materialized view outside this service, never inside it.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
	"gorm.io/gorm"

	"github.com/tbourn/go-payments-backend/internal/domain"
	"github.com/tbourn/go-payments-backend/internal/repo"
)

// Well-known account codes used by the balance projector. Merchants may
// carry additional accounts, but these three are provisioned for every
// merchant and drive the /balance endpoint.
const (
	AccountCodeBalanceAvailable = "BALANCE_AVAILABLE"
	AccountCodeBalancePending   = "BALANCE_PENDING"
	AccountCodeFees             = "FEES"
)

// AccountCodeProcessingReceivable is the asset-side counterpart used when a
// capture books gross funds against the merchant's pending balance and fee
// revenue. It is not part of the /balance projection.
const AccountCodeProcessingReceivable = "PROCESSING_RECEIVABLE"

// LedgerLineInput describes one movement in a posting request.
type LedgerLineInput struct {
	AccountID string
	Direction string // domain.LedgerDirectionDebit or ...Credit
	Amount    int64  // strictly positive, minor units
}

// PostJournalEntryInput describes a posting request. Status defaults to
// POSTED and PostedAt to the current time; entries created with any other
// status keep a nil posted timestamp (draft/reversal workflows).
type PostJournalEntryInput struct {
	Reference   *string
	Description *string
	Status      string
	PostedAt    *time.Time
	Lines       []LedgerLineInput
}

// JournalTotals carries the gross debit and credit sums of an entry.
type JournalTotals struct {
	DebitTotal  int64 `json:"debit_total"`
	CreditTotal int64 `json:"credit_total"`
}

// MerchantBalances is the projector's view over the well-known accounts.
type MerchantBalances struct {
	Available int64 `json:"available"`
	Pending   int64 `json:"pending"`
	Fees      int64 `json:"fees"`
}

// LedgerService implements posting, auditing, and balance projection. It is
// safe for concurrent use; atomicity relies entirely on the database
// transaction, not on any in-process lock.
type LedgerService struct {
	// DB is the GORM handle used for all ledger operations.
	DB *gorm.DB
}

// validateLines enforces the posting preconditions, each failing with a
// distinct LedgerInvariantError: at least one line, strictly positive
// integer amounts, and debits equal to credits.
func validateLines(lines []LedgerLineInput) (JournalTotals, error) {
	if len(lines) == 0 {
		return JournalTotals{}, &LedgerInvariantError{Reason: "journal entry must include at least one ledger line"}
	}
	var totals JournalTotals
	for _, l := range lines {
		if l.Amount <= 0 {
			return JournalTotals{}, &LedgerInvariantError{Reason: "ledger line amounts must be positive integers"}
		}
		switch l.Direction {
		case domain.LedgerDirectionDebit:
			totals.DebitTotal += l.Amount
		case domain.LedgerDirectionCredit:
			totals.CreditTotal += l.Amount
		default:
			return JournalTotals{}, &LedgerInvariantError{Reason: "ledger line direction must be DEBIT or CREDIT"}
		}
	}
	if totals.DebitTotal != totals.CreditTotal {
		return totals, &LedgerInvariantError{
			Reason:      "journal entry is unbalanced",
			DebitTotal:  totals.DebitTotal,
			CreditTotal: totals.CreditTotal,
		}
	}
	return totals, nil
}

// PostJournalEntry validates and persists a balanced journal entry as one
// atomic unit: either the entry and every line exist afterward, or none do.
// Validation failures short-circuit before any durable write. On success
// the entry is re-read from durable state (with its lines) so the caller
// never sees in-memory data that diverges from what was committed.
func (s *LedgerService) PostJournalEntry(ctx context.Context, merchantID string, in PostJournalEntryInput) (*domain.JournalEntry, error) {
	if _, err := validateLines(in.Lines); err != nil {
		ledgerInvariantViolations.Inc()
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = domain.JournalEntryStatusPosted
	}
	var postedAt *time.Time
	if status == domain.JournalEntryStatusPosted {
		t := time.Now().UTC()
		if in.PostedAt != nil {
			t = in.PostedAt.UTC()
		}
		postedAt = &t
	}

	entry := &domain.JournalEntry{
		ID:          uuid.NewString(),
		MerchantID:  merchantID,
		Reference:   in.Reference,
		Description: in.Description,
		Status:      status,
		PostedAt:    postedAt,
		CreatedAt:   time.Now().UTC(),
	}
	lines := make([]domain.LedgerLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		lines = append(lines, domain.LedgerLine{
			ID:         uuid.NewString(),
			MerchantID: merchantID,
			AccountID:  l.AccountID,
			Direction:  l.Direction,
			Amount:     l.Amount,
			CreatedAt:  time.Now().UTC(),
		})
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return repo.CreateJournalEntry(ctx, tx, entry, lines)
	})
	if err != nil {
		return nil, err
	}

	journalEntriesPosted.Inc()
	return repo.GetJournalEntry(ctx, s.DB, merchantID, entry.ID)
}

// GetJournalEntry fetches an entry with its lines within the merchant
// scope, returning ErrJournalEntryNotFound for missing or foreign rows.
func (s *LedgerService) GetJournalEntry(ctx context.Context, merchantID, entryID string) (*domain.JournalEntry, error) {
	e, err := repo.GetJournalEntry(ctx, s.DB, merchantID, entryID)
	if err == repo.ErrNotFound {
		return nil, ErrJournalEntryNotFound
	}
	return e, err
}

// AssertJournalEntryBalanced re-derives an entry's totals from its stored
// lines and fails with a LedgerInvariantError identifying both totals when
// they disagree. It is an auditing primitive independent of the write path,
// usable to detect corruption from out-of-band writes.
func (s *LedgerService) AssertJournalEntryBalanced(ctx context.Context, merchantID, entryID string) (JournalTotals, error) {
	if _, err := repo.GetJournalEntry(ctx, s.DB, merchantID, entryID); err != nil {
		if err == repo.ErrNotFound {
			return JournalTotals{}, ErrJournalEntryNotFound
		}
		return JournalTotals{}, err
	}

	stored, err := repo.ListJournalLines(ctx, s.DB, merchantID, entryID)
	if err != nil {
		return JournalTotals{}, err
	}
	inputs := make([]LedgerLineInput, 0, len(stored))
	for _, l := range stored {
		inputs = append(inputs, LedgerLineInput{AccountID: l.AccountID, Direction: l.Direction, Amount: l.Amount})
	}

	totals, err := validateLines(inputs)
	if err != nil {
		ledgerInvariantViolations.Inc()
		return totals, err
	}
	return totals, nil
}

// AccountBalances derives per-code balances for the requested well-known
// account codes. For each code, all lines ever posted against the
// merchant's account are summed and normalized per the account's type.
// Absent accounts yield zero — a merchant that never had an event of a
// given kind reads as 0, not "not found".
func (s *LedgerService) AccountBalances(ctx context.Context, merchantID string, codes []string) (map[string]int64, error) {
	balances := make(map[string]int64, len(codes))
	for _, code := range codes {
		balances[code] = 0
	}

	accounts, err := repo.ListLedgerAccountsByCodes(ctx, s.DB, merchantID, codes)
	if err != nil {
		return nil, err
	}
	for _, acc := range accounts {
		debit, credit, err := repo.AccountLineTotals(ctx, s.DB, merchantID, acc.ID)
		if err != nil {
			return nil, err
		}
		balances[acc.Code] = acc.NormalBalance(debit, credit)
	}
	return balances, nil
}

// MerchantBalances projects the three well-known accounts into a single
// balances view for the /balance endpoint.
func (s *LedgerService) MerchantBalances(ctx context.Context, merchantID string) (MerchantBalances, error) {
	m, err := s.AccountBalances(ctx, merchantID, []string{
		AccountCodeBalanceAvailable,
		AccountCodeBalancePending,
		AccountCodeFees,
	})
	if err != nil {
		return MerchantBalances{}, err
	}
	return MerchantBalances{
		Available: m[AccountCodeBalanceAvailable],
		Pending:   m[AccountCodeBalancePending],
		Fees:      m[AccountCodeFees],
	}, nil
}

// EnsureAccount returns the merchant's account with the given code,
// creating it when absent. The currency must be a valid ISO 4217 unit.
// Concurrent creators are reconciled via the (merchant_id, code) unique
// index: the loser re-reads the winner's row.
func (s *LedgerService) EnsureAccount(ctx context.Context, merchantID, code, name, accountType, curr string) (*domain.LedgerAccount, error) {
	curr = strings.ToUpper(strings.TrimSpace(curr))
	if _, err := currency.ParseISO(curr); err != nil {
		return nil, ErrInvalidCurrency
	}

	acc, err := repo.GetLedgerAccountByCode(ctx, s.DB, merchantID, code)
	if err == nil {
		return acc, nil
	}
	if err != repo.ErrNotFound {
		return nil, err
	}
	acc, err = repo.CreateLedgerAccount(ctx, s.DB, merchantID, code, name, accountType, curr)
	if err == repo.ErrDuplicate {
		return repo.GetLedgerAccountByCode(ctx, s.DB, merchantID, code)
	}
	return acc, err
}
