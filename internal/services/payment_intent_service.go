// Package services – PaymentIntentService
//
// This file implements the payment intent lifecycle: creation (including
// the webhook delivery records emitted for payment_intent.created) and
// capture, which books the captured funds into the merchant's ledger via
// the posting engine.
//
// Both mutating operations are designed to run as the unit of work inside
// IdempotencyService.Execute; they perform their own durable writes inside
// a single transaction each.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"gorm.io/gorm"

	"github.com/tbourn/go-payments-backend/internal/domain"
	"github.com/tbourn/go-payments-backend/internal/repo"
)

// DefaultFeeBasisPoints is the processing fee applied at capture when the
// service is constructed without an explicit rate (2.9%).
const DefaultFeeBasisPoints = 290

// CreatePaymentIntentInput is the validated payload for intent creation.
// Metadata is an opaque JSON document serialized by the handler.
type CreatePaymentIntentInput struct {
	Amount             int64
	Currency           string
	CustomerID         *string
	PaymentMethodToken string
	Metadata           string
	IdempotencyKey     string
}

// PaymentIntentService implements payment intent use-cases. It validates
// input, enforces merchant scoping, and coordinates intent rows, webhook
// deliveries, and ledger postings.
type PaymentIntentService struct {
	// DB is the database handle used for all intent operations.
	DB *gorm.DB
	// Ledger posts capture entries; required for Capture.
	Ledger *LedgerService
	// FeeBasisPoints is the processing fee in basis points of the gross
	// amount; zero means "use DefaultFeeBasisPoints".
	FeeBasisPoints int64
}

// Create validates and persists a new payment intent in
// requires_confirmation status, together with one PENDING webhook delivery
// row per active endpoint subscribed to payment_intent.created. The intent
// and its deliveries commit atomically.
//
// Validation failures (ErrInvalidAmount, ErrInvalidCurrency,
// ErrCustomerNotFound) short-circuit before any durable write.
func (s *PaymentIntentService) Create(ctx context.Context, merchantID string, in CreatePaymentIntentInput) (*domain.PaymentIntent, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	curr := strings.ToUpper(strings.TrimSpace(in.Currency))
	if len(curr) != 3 {
		return nil, ErrInvalidCurrency
	}
	if _, err := currency.ParseISO(curr); err != nil {
		return nil, ErrInvalidCurrency
	}
	if strings.TrimSpace(in.PaymentMethodToken) == "" {
		return nil, errors.New("payment_method_token is required")
	}

	if in.CustomerID != nil {
		if _, err := repo.GetCustomer(ctx, s.DB, merchantID, *in.CustomerID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrCustomerNotFound
			}
			return nil, err
		}
	}

	intent := &domain.PaymentIntent{
		MerchantID:         merchantID,
		CustomerID:         in.CustomerID,
		Amount:             in.Amount,
		Currency:           curr,
		Status:             domain.PaymentIntentStatusRequiresConfirmation,
		PaymentMethodToken: in.PaymentMethodToken,
		IdempotencyKey:     in.IdempotencyKey,
		Metadata:           in.Metadata,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreatePaymentIntent(ctx, tx, intent); err != nil {
			return err
		}
		deliveries, err := s.buildCreatedDeliveries(ctx, tx, intent)
		if err != nil {
			return err
		}
		return repo.CreateWebhookDeliveries(ctx, tx, deliveries)
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// buildCreatedDeliveries fans the payment_intent.created event out to the
// merchant's active, subscribed endpoints.
func (s *PaymentIntentService) buildCreatedDeliveries(ctx context.Context, tx *gorm.DB, intent *domain.PaymentIntent) ([]domain.WebhookDelivery, error) {
	endpoints, err := repo.ListActiveWebhookEndpoints(ctx, tx, intent.MerchantID)
	if err != nil {
		return nil, err
	}

	var out []domain.WebhookDelivery
	for _, ep := range endpoints {
		if !ep.SubscribesTo(domain.EventPaymentIntentCreated) {
			continue
		}
		payload, err := json.Marshal(map[string]any{
			"type": domain.EventPaymentIntentCreated,
			"data": map[string]any{
				"payment_intent_id": intent.ID,
				"merchant_id":       intent.MerchantID,
				"amount":            intent.Amount,
				"currency":          intent.Currency,
				"status":            intent.Status,
			},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, domain.WebhookDelivery{
			MerchantID:        intent.MerchantID,
			WebhookEndpointID: ep.ID,
			EventType:         domain.EventPaymentIntentCreated,
			Payload:           string(payload),
		})
	}
	return out, nil
}

// Get fetches an intent within the merchant scope.
func (s *PaymentIntentService) Get(ctx context.Context, merchantID, id string) (*domain.PaymentIntent, error) {
	pi, err := repo.GetPaymentIntent(ctx, s.DB, merchantID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrPaymentIntentNotFound
	}
	return pi, err
}

// Capture transitions an intent from requires_confirmation to captured and
// posts the balanced journal entry booking the funds:
//
//	DEBIT  PROCESSING_RECEIVABLE  gross
//	CREDIT BALANCE_PENDING        gross - fee
//	CREDIT FEES                   fee
//
// The fee is FeeBasisPoints of the gross amount, rounded down. The status
// flip and the posting run in one transaction; capturing an intent twice
// fails with ErrIntentNotCapturable on the second attempt because the
// status guard matches no row.
func (s *PaymentIntentService) Capture(ctx context.Context, merchantID, id string) (*domain.PaymentIntent, *domain.JournalEntry, error) {
	intent, err := s.Get(ctx, merchantID, id)
	if err != nil {
		return nil, nil, err
	}
	if intent.Status != domain.PaymentIntentStatusRequiresConfirmation {
		return nil, nil, ErrIntentNotCapturable
	}

	receivable, err := s.Ledger.EnsureAccount(ctx, merchantID, AccountCodeProcessingReceivable, "Processing Receivable", domain.LedgerAccountTypeAsset, intent.Currency)
	if err != nil {
		return nil, nil, err
	}
	pending, err := s.Ledger.EnsureAccount(ctx, merchantID, AccountCodeBalancePending, "Pending Balance", domain.LedgerAccountTypeLiability, intent.Currency)
	if err != nil {
		return nil, nil, err
	}
	fees, err := s.Ledger.EnsureAccount(ctx, merchantID, AccountCodeFees, "Processing Fees", domain.LedgerAccountTypeRevenue, intent.Currency)
	if err != nil {
		return nil, nil, err
	}

	bps := s.FeeBasisPoints
	if bps == 0 {
		bps = DefaultFeeBasisPoints
	}
	fee := intent.Amount * bps / 10000
	net := intent.Amount - fee

	lines := []LedgerLineInput{
		{AccountID: receivable.ID, Direction: domain.LedgerDirectionDebit, Amount: intent.Amount},
		{AccountID: pending.ID, Direction: domain.LedgerDirectionCredit, Amount: net},
	}
	if fee > 0 {
		lines = append(lines, LedgerLineInput{AccountID: fees.ID, Direction: domain.LedgerDirectionCredit, Amount: fee})
	}

	ref := "pi_capture:" + intent.ID
	desc := "Capture of payment intent " + intent.ID
	var entry *domain.JournalEntry

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdatePaymentIntentStatus(ctx, tx, merchantID, id,
			domain.PaymentIntentStatusRequiresConfirmation, domain.PaymentIntentStatusCaptured); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrIntentNotCapturable
			}
			return err
		}
		ledgerInTx := &LedgerService{DB: tx}
		posted, err := ledgerInTx.PostJournalEntry(ctx, merchantID, PostJournalEntryInput{
			Reference:   &ref,
			Description: &desc,
			Status:      domain.JournalEntryStatusPosted,
			Lines:       lines,
		})
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	intent.Status = domain.PaymentIntentStatusCaptured
	intent.UpdatedAt = time.Now().UTC()
	return intent, entry, nil
}
