// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Customer
// model. They follow the "thin repository" approach: no business logic,
// only CRUD persistence and query composition, always scoped by merchant.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-payments-backend/internal/domain"
)

// CreateCustomer inserts a new customer row owned by merchantID. Optional
// fields are passed as pointers; metadata is a pre-serialized JSON string.
func CreateCustomer(ctx context.Context, db *gorm.DB, merchantID string, externalID, email, name *string, metadata string) (*domain.Customer, error) {
	c := &domain.Customer{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		ExternalID: externalID,
		Email:      email,
		Name:       name,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetCustomer fetches a single customer by ID within the merchant scope.
// If the record does not exist (or belongs to another merchant), it returns
// ErrNotFound.
func GetCustomer(ctx context.Context, db *gorm.DB, merchantID, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := db.WithContext(ctx).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountCustomers returns the total number of customers owned by merchantID.
func CountCustomers(ctx context.Context, db *gorm.DB, merchantID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("merchant_id = ?", merchantID).
		Count(&total).Error
	return total, err
}

// ListCustomersPage returns a paginated slice of the merchant's customers,
// ordered by creation time descending. Use CountCustomers for pagination
// metadata.
func ListCustomersPage(ctx context.Context, db *gorm.DB, merchantID string, offset, limit int) ([]domain.Customer, error) {
	var out []domain.Customer
	err := db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
