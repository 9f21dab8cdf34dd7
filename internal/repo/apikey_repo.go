// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for API key
// authentication lookups.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-payments-backend/internal/domain"
)

// FindActiveAPIKeyByHash returns the active API key matching the given
// SHA-256 hash, preloading its merchant, or ErrNotFound. Inactive keys are
// treated as missing.
func FindActiveAPIKeyByHash(ctx context.Context, db *gorm.DB, keyHash string) (*domain.APIKey, error) {
	var k domain.APIKey
	err := db.WithContext(ctx).
		Preload("Merchant").
		Where("key_hash = ? AND is_active = ?", keyHash, true).
		First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// TouchAPIKeyLastUsed updates last_used_at. Failures are the caller's to
// ignore; the timestamp is informational.
func TouchAPIKeyLastUsed(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.APIKey{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}
