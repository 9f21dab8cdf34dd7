// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the durable
// IdempotencyRecord model, the source of truth for in-flight and completed
// idempotent operations.
//
// The composite unique index on (merchant_id, route, key) is what arbitrates
// concurrent first-time requests: the insert either succeeds or surfaces
// ErrDuplicate, never a check-then-act race in application code.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-payments-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that an idempotency record already exists for the
// given (merchant_id, route, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotencyRecord returns the record for (merchantID, route, key) or
// ErrNotFound. Expiry is not filtered here: ExpiresAt is advisory metadata
// and a completed record remains replayable until housekeeping removes it.
func GetIdempotencyRecord(ctx context.Context, db *gorm.DB, merchantID, route, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := db.WithContext(ctx).
		Where("merchant_id = ? AND route = ? AND key = ?", merchantID, route, key).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreatePendingIdempotencyRecord inserts a PENDING record for a first-seen
// key and returns ErrDuplicate on a unique-constraint violation (a
// concurrent caller won the insert race).
func CreatePendingIdempotencyRecord(ctx context.Context, db *gorm.DB, merchantID, route, key, requestHash string, ttl time.Duration) (*domain.IdempotencyRecord, error) {
	now := time.Now().UTC()
	rec := &domain.IdempotencyRecord{
		ID:          uuid.NewString(),
		MerchantID:  merchantID,
		Route:       route,
		Key:         key,
		RequestHash: requestHash,
		State:       domain.IdempotencyStatePending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// isUniqueViolation detects unique-constraint violations across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// CompleteIdempotencyRecord attaches the captured response to the record and
// flips it PENDING -> COMPLETED. The transition is irreversible; a record
// that is already COMPLETED is left untouched and returned as-is so a racing
// second writer cannot overwrite the original response.
func CompleteIdempotencyRecord(ctx context.Context, db *gorm.DB, merchantID, route, key string, statusCode int, body, contentType string) (*domain.IdempotencyRecord, error) {
	res := db.WithContext(ctx).
		Model(&domain.IdempotencyRecord{}).
		Where("merchant_id = ? AND route = ? AND key = ? AND state = ?",
			merchantID, route, key, domain.IdempotencyStatePending).
		Updates(map[string]any{
			"state":                 domain.IdempotencyStateCompleted,
			"response_status_code":  statusCode,
			"response_body":         body,
			"response_content_type": contentType,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	return GetIdempotencyRecord(ctx, db, merchantID, route, key)
}
