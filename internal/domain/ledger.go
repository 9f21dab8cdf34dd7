// Package domain defines the core persistence models for the application.
// This file holds the double-entry ledger schema: accounts, journal
// entries, and their lines.
//
// The ledger never stores a running balance. Balances are derived by
// summing the immutable line history, which keeps them reconstructable and
// immune to drift; the read cost is accepted and documented on the
// projector in the services package.
package domain

import "time"

// Ledger account types following the normal-balance-side convention:
// ASSET/EXPENSE balances are debit-positive, LIABILITY/REVENUE balances
// are credit-positive.
const (
	LedgerAccountTypeAsset     = "ASSET"
	LedgerAccountTypeLiability = "LIABILITY"
	LedgerAccountTypeExpense   = "EXPENSE"
	LedgerAccountTypeRevenue   = "REVENUE"
)

// Ledger line directions.
const (
	LedgerDirectionDebit  = "DEBIT"
	LedgerDirectionCredit = "CREDIT"
)

// Journal entry statuses. PostedAt is set only for POSTED entries; a
// PENDING entry is a draft and carries no posted timestamp.
const (
	JournalEntryStatusPending = "PENDING"
	JournalEntryStatusPosted  = "POSTED"
)

// LedgerAccount is a merchant-scoped account identified by a well-known
// code (e.g. "BALANCE_AVAILABLE"). It deliberately has no balance column.
type LedgerAccount struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	MerchantID  string    `json:"merchant_id"  gorm:"type:char(36);not null;uniqueIndex:ux_ledger_accounts_code,priority:1"`
	Code        string    `json:"code"         gorm:"type:varchar(64);not null;uniqueIndex:ux_ledger_accounts_code,priority:2"`
	Name        string    `json:"name"         gorm:"type:varchar(200);not null"`
	AccountType string    `json:"account_type" gorm:"type:varchar(16);not null"`
	Currency    string    `json:"currency"     gorm:"type:char(3);not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for LedgerAccount.
func (LedgerAccount) TableName() string { return "ledger_accounts" }

// NormalBalance converts gross debit/credit totals into a signed balance
// per the account's normal side.
func (a LedgerAccount) NormalBalance(debitTotal, creditTotal int64) int64 {
	if a.AccountType == LedgerAccountTypeAsset || a.AccountType == LedgerAccountTypeExpense {
		return debitTotal - creditTotal
	}
	return creditTotal - debitTotal
}

// JournalEntry is one atomic accounting event. Its lines must sum to zero
// (total debits equal total credits); the posting engine enforces this
// before any row is written, and entries are immutable once created —
// corrections are made with new offsetting entries.
type JournalEntry struct {
	ID          string     `json:"id"                    gorm:"type:char(36);primaryKey"`
	MerchantID  string     `json:"merchant_id"           gorm:"type:char(36);not null;index:idx_journal_merchant"`
	Reference   *string    `json:"reference,omitempty"   gorm:"type:varchar(200)"`
	Description *string    `json:"description,omitempty" gorm:"type:varchar(500)"`
	Status      string     `json:"status"                gorm:"type:varchar(16);not null;default:'POSTED'"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	// Lines are the entry's debit/credit movements, written in the same
	// transaction as the entry itself.
	Lines []LedgerLine `json:"lines" gorm:"foreignKey:JournalEntryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for JournalEntry.
func (JournalEntry) TableName() string { return "journal_entries" }

// LedgerLine is a single debit or credit movement of Amount (a strictly
// positive integer in minor units) against one account within one journal
// entry.
type LedgerLine struct {
	ID             string    `json:"id"               gorm:"type:char(36);primaryKey"`
	MerchantID     string    `json:"merchant_id"      gorm:"type:char(36);not null;index"`
	JournalEntryID string    `json:"journal_entry_id" gorm:"type:char(36);not null;index:idx_lines_entry"`
	AccountID      string    `json:"account_id"       gorm:"type:char(36);not null;index:idx_lines_account"`
	Direction      string    `json:"direction"        gorm:"type:varchar(8);not null;check:direction IN ('DEBIT','CREDIT')"`
	Amount         int64     `json:"amount"           gorm:"not null;check:amount > 0"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for LedgerLine.
func (LedgerLine) TableName() string { return "ledger_lines" }
