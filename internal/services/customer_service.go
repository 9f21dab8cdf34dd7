// Package services – CustomerService
//
// This file implements customer management: creation with optional
// identity fields and paginated, merchant-scoped listing. Customers carry
// no balances themselves; they only anchor payment intents.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-payments-backend/internal/domain"
	"github.com/tbourn/go-payments-backend/internal/repo"
)

// CreateCustomerInput is the validated payload for customer creation. All
// fields are optional; Metadata is a pre-serialized JSON document.
type CreateCustomerInput struct {
	ExternalID *string
	Email      *string
	Name       *string
	Metadata   string
}

// CustomerService provides customer-level operations.
type CustomerService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// Create inserts a new customer owned by merchantID.
func (s *CustomerService) Create(ctx context.Context, merchantID string, in CreateCustomerInput) (*domain.Customer, error) {
	return repo.CreateCustomer(ctx, s.DB, merchantID, in.ExternalID, in.Email, in.Name, in.Metadata)
}

// Get fetches a customer within the merchant scope, returning
// ErrCustomerNotFound for missing or foreign rows.
func (s *CustomerService) Get(ctx context.Context, merchantID, id string) (*domain.Customer, error) {
	c, err := repo.GetCustomer(ctx, s.DB, merchantID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCustomerNotFound
	}
	return c, err
}

// ListPage returns a page of the merchant's customers and the total count.
// It applies defaults for invalid page/pageSize.
func (s *CustomerService) ListPage(ctx context.Context, merchantID string, page, pageSize int) ([]domain.Customer, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountCustomers(ctx, s.DB, merchantID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Customer{}, 0, nil
	}

	items, err := repo.ListCustomersPage(ctx, s.DB, merchantID, offset, pageSize)
	return items, total, err
}
