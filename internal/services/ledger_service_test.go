package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/tbourn/go-payments-backend/internal/domain"
)

func newLedgerService(t *testing.T) *LedgerService {
	t.Helper()
	db := newSvcDB(t, &domain.LedgerAccount{}, &domain.JournalEntry{}, &domain.LedgerLine{})
	return &LedgerService{DB: db}
}

func mustAccount(t *testing.T, svc *LedgerService, merchantID, code, accountType string) *domain.LedgerAccount {
	t.Helper()
	acc, err := svc.EnsureAccount(context.Background(), merchantID, code, code, accountType, "USD")
	if err != nil {
		t.Fatalf("EnsureAccount(%s): %v", code, err)
	}
	return acc
}

func TestPostJournalEntry_BalancedPersistsAtomically(t *testing.T) {
	svc := newLedgerService(t)
	ctx := context.Background()

	a := mustAccount(t, svc, "m1", "A", domain.LedgerAccountTypeAsset)
	b := mustAccount(t, svc, "m1", "B", domain.LedgerAccountTypeLiability)

	ref := "order:42"
	entry, err := svc.PostJournalEntry(ctx, "m1", PostJournalEntryInput{
		Reference: &ref,
		Lines: []LedgerLineInput{
			{AccountID: a.ID, Direction: domain.LedgerDirectionDebit, Amount: 1000},
			{AccountID: b.ID, Direction: domain.LedgerDirectionCredit, Amount: 1000},
		},
	})
	if err != nil {
		t.Fatalf("PostJournalEntry: %v", err)
	}
	if entry.Status != domain.JournalEntryStatusPosted || entry.PostedAt == nil {
		t.Fatalf("expected POSTED entry with timestamp: %+v", entry)
	}
	// The returned entry comes from a durable re-read with its lines.
	if len(entry.Lines) != 2 {
		t.Fatalf("expected 2 lines on re-read, got %d", len(entry.Lines))
	}

	totals, err := svc.AssertJournalEntryBalanced(ctx, "m1", entry.ID)
	if err != nil {
		t.Fatalf("AssertJournalEntryBalanced: %v", err)
	}
	if totals.DebitTotal != 1000 || totals.CreditTotal != 1000 {
		t.Fatalf("totals = %+v", totals)
	}
}

func TestPostJournalEntry_UnbalancedRejectedWithBothTotals(t *testing.T) {
	svc := newLedgerService(t)
	ctx := context.Background()

	a := mustAccount(t, svc, "m1", "A", domain.LedgerAccountTypeAsset)
	b := mustAccount(t, svc, "m1", "B", domain.LedgerAccountTypeLiability)

	_, err := svc.PostJournalEntry(ctx, "m1", PostJournalEntryInput{
		Lines: []LedgerLineInput{
			{AccountID: a.ID, Direction: domain.LedgerDirectionDebit, Amount: 1000},
			{AccountID: b.ID, Direction: domain.LedgerDirectionCredit, Amount: 900},
		},
	})
	var inv *LedgerInvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("expected LedgerInvariantError, got %v", err)
	}
	if inv.DebitTotal != 1000 || inv.CreditTotal != 900 {
		t.Fatalf("error must carry both totals: %+v", inv)
	}

	// Nothing was written.
	var count int64
	svc.DB.Model(&domain.JournalEntry{}).Count(&count)
	if count != 0 {
		t.Fatalf("unbalanced entry leaked %d rows", count)
	}
}

func TestPostJournalEntry_RejectsBadLines(t *testing.T) {
	svc := newLedgerService(t)
	ctx := context.Background()
	a := mustAccount(t, svc, "m1", "A", domain.LedgerAccountTypeAsset)

	cases := []struct {
		name  string
		lines []LedgerLineInput
	}{
		{"empty", nil},
		{"zero amount", []LedgerLineInput{
			{AccountID: a.ID, Direction: domain.LedgerDirectionDebit, Amount: 0},
		}},
		{"negative amount", []LedgerLineInput{
			{AccountID: a.ID, Direction: domain.LedgerDirectionDebit, Amount: -5},
			{AccountID: a.ID, Direction: domain.LedgerDirectionCredit, Amount: -5},
		}},
		{"bad direction", []LedgerLineInput{
			{AccountID: a.ID, Direction: "SIDEWAYS", Amount: 10},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PostJournalEntry(ctx, "m1", PostJournalEntryInput{Lines: tc.lines})
			if !IsLedgerInvariantViolation(err) {
				t.Fatalf("expected invariant violation, got %v", err)
			}
		})
	}
}

func TestAssertJournalEntryBalanced_DetectsStoredCorruption(t *testing.T) {
	svc := newLedgerService(t)
	ctx := context.Background()

	a := mustAccount(t, svc, "m1", "A", domain.LedgerAccountTypeAsset)
	b := mustAccount(t, svc, "m1", "B", domain.LedgerAccountTypeLiability)

	entry, err := svc.PostJournalEntry(ctx, "m1", PostJournalEntryInput{
		Lines: []LedgerLineInput{
			{AccountID: a.ID, Direction: domain.LedgerDirectionDebit, Amount: 500},
			{AccountID: b.ID, Direction: domain.LedgerDirectionCredit, Amount: 500},
		},
	})
	if err != nil {
		t.Fatalf("PostJournalEntry: %v", err)
	}

	// Corrupt one line out-of-band, bypassing the posting path.
	if err := svc.DB.Model(&domain.LedgerLine{}).
		Where("journal_entry_id = ? AND direction = ?", entry.ID, domain.LedgerDirectionCredit).
		Update("amount", 400).Error; err != nil {
		t.Fatalf("corrupt line: %v", err)
	}

	totals, err := svc.AssertJournalEntryBalanced(ctx, "m1", entry.ID)
	var inv *LedgerInvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if totals.DebitTotal != 500 || totals.CreditTotal != 400 {
		t.Fatalf("totals = %+v", totals)
	}
}

func TestAssertJournalEntryBalanced_MissingEntry(t *testing.T) {
	svc := newLedgerService(t)
	_, err := svc.AssertJournalEntryBalanced(context.Background(), "m1", uuid.NewString())
	if !errors.Is(err, ErrJournalEntryNotFound) {
		t.Fatalf("expected ErrJournalEntryNotFound, got %v", err)
	}
}

func TestAccountBalances_NormalBalanceConvention(t *testing.T) {
	svc := newLedgerService(t)
	ctx := context.Background()

	// Moving 1000 from one LIABILITY account to another: the debited side
	// must read -1000 (never clamped to zero) and the credited side +1000.
	debited := mustAccount(t, svc, "m1", AccountCodeBalancePending, domain.LedgerAccountTypeLiability)
	credited := mustAccount(t, svc, "m1", AccountCodeBalanceAvailable, domain.LedgerAccountTypeLiability)

	_, err := svc.PostJournalEntry(ctx, "m1", PostJournalEntryInput{
		Lines: []LedgerLineInput{
			{AccountID: debited.ID, Direction: domain.LedgerDirectionDebit, Amount: 1000},
			{AccountID: credited.ID, Direction: domain.LedgerDirectionCredit, Amount: 1000},
		},
	})
	if err != nil {
		t.Fatalf("PostJournalEntry: %v", err)
	}

	balances, err := svc.AccountBalances(ctx, "m1", []string{AccountCodeBalancePending, AccountCodeBalanceAvailable})
	if err != nil {
		t.Fatalf("AccountBalances: %v", err)
	}
	if balances[AccountCodeBalancePending] != -1000 {
		t.Fatalf("debited liability = %d; want -1000", balances[AccountCodeBalancePending])
	}
	if balances[AccountCodeBalanceAvailable] != 1000 {
		t.Fatalf("credited liability = %d; want +1000", balances[AccountCodeBalanceAvailable])
	}
}

func TestAccountBalances_AbsentAccountsReadZero(t *testing.T) {
	svc := newLedgerService(t)

	balances, err := svc.AccountBalances(context.Background(), "m1", []string{
		AccountCodeBalanceAvailable, AccountCodeBalancePending, AccountCodeFees,
	})
	if err != nil {
		t.Fatalf("AccountBalances: %v", err)
	}
	for code, v := range balances {
		if v != 0 {
			t.Fatalf("%s = %d; want 0 for merchant with no history", code, v)
		}
	}
}

func TestMerchantBalances_TenantIsolation(t *testing.T) {
	svc := newLedgerService(t)
	ctx := context.Background()

	// Merchant m1 earns fees; merchant m2 has an identically-coded account
	// with no activity.
	fees1 := mustAccount(t, svc, "m1", AccountCodeFees, domain.LedgerAccountTypeRevenue)
	clearing1 := mustAccount(t, svc, "m1", "CLEARING", domain.LedgerAccountTypeAsset)
	mustAccount(t, svc, "m2", AccountCodeFees, domain.LedgerAccountTypeRevenue)

	_, err := svc.PostJournalEntry(ctx, "m1", PostJournalEntryInput{
		Lines: []LedgerLineInput{
			{AccountID: clearing1.ID, Direction: domain.LedgerDirectionDebit, Amount: 2900},
			{AccountID: fees1.ID, Direction: domain.LedgerDirectionCredit, Amount: 2900},
		},
	})
	if err != nil {
		t.Fatalf("PostJournalEntry: %v", err)
	}

	b1, err := svc.MerchantBalances(ctx, "m1")
	if err != nil {
		t.Fatalf("MerchantBalances m1: %v", err)
	}
	if b1.Fees != 2900 {
		t.Fatalf("m1 fees = %d; want 2900", b1.Fees)
	}

	b2, err := svc.MerchantBalances(ctx, "m2")
	if err != nil {
		t.Fatalf("MerchantBalances m2: %v", err)
	}
	if b2.Fees != 0 || b2.Available != 0 || b2.Pending != 0 {
		t.Fatalf("m2 balances leaked: %+v", b2)
	}
}

func TestEnsureAccount_ValidatesCurrencyAndDeduplicates(t *testing.T) {
	svc := newLedgerService(t)
	ctx := context.Background()

	if _, err := svc.EnsureAccount(ctx, "m1", "X", "X", domain.LedgerAccountTypeAsset, "ZZZ"); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}

	first, err := svc.EnsureAccount(ctx, "m1", "X", "X", domain.LedgerAccountTypeAsset, "usd")
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	again, err := svc.EnsureAccount(ctx, "m1", "X", "X", domain.LedgerAccountTypeAsset, "USD")
	if err != nil {
		t.Fatalf("EnsureAccount again: %v", err)
	}
	if first.ID != again.ID {
		t.Fatalf("EnsureAccount created a duplicate: %s vs %s", first.ID, again.ID)
	}
	if first.Currency != "USD" {
		t.Fatalf("currency not normalized: %q", first.Currency)
	}
}

func TestPostJournalEntry_DraftHasNoPostedAt(t *testing.T) {
	svc := newLedgerService(t)
	ctx := context.Background()

	a := mustAccount(t, svc, "m1", "A", domain.LedgerAccountTypeAsset)
	b := mustAccount(t, svc, "m1", "B", domain.LedgerAccountTypeLiability)

	entry, err := svc.PostJournalEntry(ctx, "m1", PostJournalEntryInput{
		Status: domain.JournalEntryStatusPending,
		Lines: []LedgerLineInput{
			{AccountID: a.ID, Direction: domain.LedgerDirectionDebit, Amount: 10},
			{AccountID: b.ID, Direction: domain.LedgerDirectionCredit, Amount: 10},
		},
	})
	if err != nil {
		t.Fatalf("PostJournalEntry: %v", err)
	}
	if entry.PostedAt != nil {
		t.Fatalf("draft entry must not carry a posted timestamp: %v", entry.PostedAt)
	}
}

func TestGetJournalEntry_NotFound(t *testing.T) {
	svc := newLedgerService(t)
	_, err := svc.GetJournalEntry(context.Background(), "m1", uuid.NewString())
	if !errors.Is(err, ErrJournalEntryNotFound) {
		t.Fatalf("expected ErrJournalEntryNotFound, got %v", err)
	}
}
