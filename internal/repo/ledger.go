// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ledger:
// accounts, journal entries, and lines.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. Writes to an entry and its lines must
// happen inside one transaction; CreateJournalEntry is designed to be called
// with a transaction-bound handle for exactly that reason.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-payments-backend/internal/domain"
)

// CreateLedgerAccount inserts a merchant-scoped account. The (merchant_id,
// code) pair is unique; a second insert for the same code returns
// ErrDuplicate.
func CreateLedgerAccount(ctx context.Context, db *gorm.DB, merchantID, code, name, accountType, currency string) (*domain.LedgerAccount, error) {
	acc := &domain.LedgerAccount{
		ID:          uuid.NewString(),
		MerchantID:  merchantID,
		Code:        code,
		Name:        name,
		AccountType: accountType,
		Currency:    currency,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(acc).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return acc, nil
}

// GetLedgerAccountByCode fetches one account by its well-known code within
// the merchant scope, or ErrNotFound.
func GetLedgerAccountByCode(ctx context.Context, db *gorm.DB, merchantID, code string) (*domain.LedgerAccount, error) {
	var acc domain.LedgerAccount
	err := db.WithContext(ctx).
		Where("merchant_id = ? AND code = ?", merchantID, code).
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// ListLedgerAccountsByCodes returns the merchant's accounts matching any of
// the given codes. Codes with no account are simply absent from the result.
func ListLedgerAccountsByCodes(ctx context.Context, db *gorm.DB, merchantID string, codes []string) ([]domain.LedgerAccount, error) {
	var out []domain.LedgerAccount
	err := db.WithContext(ctx).
		Where("merchant_id = ? AND code IN ?", merchantID, codes).
		Find(&out).Error
	return out, err
}

// CreateJournalEntry inserts the entry row and all of its lines using the
// given handle. Callers are expected to pass a transaction-bound *gorm.DB so
// the entry and its lines commit or roll back as one unit; this function
// performs no balance validation (the service layer owns the invariant).
func CreateJournalEntry(ctx context.Context, db *gorm.DB, entry *domain.JournalEntry, lines []domain.LedgerLine) error {
	if err := db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}
	for i := range lines {
		lines[i].JournalEntryID = entry.ID
	}
	return db.WithContext(ctx).Create(&lines).Error
}

// GetJournalEntry re-reads a merchant's entry together with its lines, or
// returns ErrNotFound.
func GetJournalEntry(ctx context.Context, db *gorm.DB, merchantID, entryID string) (*domain.JournalEntry, error) {
	var entry domain.JournalEntry
	err := db.WithContext(ctx).
		Preload("Lines").
		Where("id = ? AND merchant_id = ?", entryID, merchantID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListJournalLines returns all lines belonging to a merchant's entry, in
// insertion order. An empty slice is a valid result (an entry created by an
// out-of-band writer may have no lines; the audit path reports that as an
// invariant violation).
func ListJournalLines(ctx context.Context, db *gorm.DB, merchantID, entryID string) ([]domain.LedgerLine, error) {
	var out []domain.LedgerLine
	err := db.WithContext(ctx).
		Where("merchant_id = ? AND journal_entry_id = ?", merchantID, entryID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// AccountLineTotals sums the gross debit and credit totals ever posted
// against one account. The projector derives balances exclusively from this
// query; no cached balance column exists.
func AccountLineTotals(ctx context.Context, db *gorm.DB, merchantID, accountID string) (debitTotal, creditTotal int64, err error) {
	type row struct {
		Direction string
		Total     int64
	}
	var rows []row
	err = db.WithContext(ctx).
		Model(&domain.LedgerLine{}).
		Select("direction, COALESCE(SUM(amount), 0) AS total").
		Where("merchant_id = ? AND account_id = ?", merchantID, accountID).
		Group("direction").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, r := range rows {
		switch r.Direction {
		case domain.LedgerDirectionDebit:
			debitTotal = r.Total
		case domain.LedgerDirectionCredit:
			creditTotal = r.Total
		}
	}
	return debitTotal, creditTotal, nil
}
