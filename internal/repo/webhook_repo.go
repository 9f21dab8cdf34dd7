// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for webhook
// endpoints and delivery records.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-payments-backend/internal/domain"
)

// ListActiveWebhookEndpoints returns the merchant's active endpoints.
func ListActiveWebhookEndpoints(ctx context.Context, db *gorm.DB, merchantID string) ([]domain.WebhookEndpoint, error) {
	var out []domain.WebhookEndpoint
	err := db.WithContext(ctx).
		Where("merchant_id = ? AND is_active = ?", merchantID, true).
		Find(&out).Error
	return out, err
}

// CreateWebhookDeliveries inserts a batch of PENDING delivery rows. Callers
// pass a transaction-bound handle so the deliveries commit together with the
// event that produced them. A nil/empty batch is a no-op.
func CreateWebhookDeliveries(ctx context.Context, db *gorm.DB, deliveries []domain.WebhookDelivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range deliveries {
		if deliveries[i].ID == "" {
			deliveries[i].ID = uuid.NewString()
		}
		if deliveries[i].Status == "" {
			deliveries[i].Status = domain.WebhookDeliveryStatusPending
		}
		if deliveries[i].CreatedAt.IsZero() {
			deliveries[i].CreatedAt = now
		}
	}
	return db.WithContext(ctx).Create(&deliveries).Error
}
