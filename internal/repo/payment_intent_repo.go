// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PaymentIntent model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-payments-backend/internal/domain"
)

// CreatePaymentIntent inserts a new intent row. The caller decides the
// handle: passing a transaction-bound *gorm.DB makes the insert part of a
// larger atomic unit (e.g. intent + webhook deliveries).
func CreatePaymentIntent(ctx context.Context, db *gorm.DB, intent *domain.PaymentIntent) error {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(intent).Error
}

// GetPaymentIntent fetches an intent by ID within the merchant scope, or
// ErrNotFound.
func GetPaymentIntent(ctx context.Context, db *gorm.DB, merchantID, id string) (*domain.PaymentIntent, error) {
	var pi domain.PaymentIntent
	err := db.WithContext(ctx).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		First(&pi).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pi, nil
}

// UpdatePaymentIntentStatus transitions an intent from one status to
// another, enforcing merchant ownership and the expected current status.
// It returns ErrNotFound when no row matched (missing, foreign, or already
// transitioned).
func UpdatePaymentIntentStatus(ctx context.Context, db *gorm.DB, merchantID, id, fromStatus, toStatus string) error {
	res := db.WithContext(ctx).
		Model(&domain.PaymentIntent{}).
		Where("id = ? AND merchant_id = ? AND status = ?", id, merchantID, fromStatus).
		Update("status", toStatus)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
