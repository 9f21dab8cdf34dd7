// Package domain defines the core persistence models for the application.
// This file holds the durable idempotency record that backs safe-retry
// semantics for mutating API calls.
package domain

import "time"

// Idempotency record states. A record is created PENDING when a key is
// first seen and transitions exactly once to COMPLETED when the response
// has been captured. There is no reverse transition and no delete path;
// ExpiresAt is advisory metadata for out-of-band housekeeping.
const (
	IdempotencyStatePending   = "PENDING"
	IdempotencyStateCompleted = "COMPLETED"
)

// IdempotencyRecord is the durable source of truth for one idempotent
// operation, keyed by (merchant_id, route, key). The composite unique index
// is the single-flight admission mechanism: when two first-time requests
// race, exactly one insert wins and the loser observes a duplicate-key
// violation.
//
// RequestHash is the SHA-256 fingerprint of the originating request's
// method and body; a lookup that finds a record with a different hash means
// the key was reused with a different payload and must be rejected.
type IdempotencyRecord struct {
	ID                  string    `gorm:"type:char(36);primaryKey"`
	MerchantID          string    `gorm:"type:char(36);not null;uniqueIndex:ux_idem_merchant_route_key,priority:1"`
	Route               string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_merchant_route_key,priority:2"`
	Key                 string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_merchant_route_key,priority:3"`
	RequestHash         string    `gorm:"type:char(64);not null"`
	State               string    `gorm:"type:varchar(16);not null;default:'PENDING'"`
	ResponseStatusCode  *int      `gorm:""`
	ResponseBody        *string   `gorm:"type:text"`
	ResponseContentType *string   `gorm:"type:varchar(100)"`
	CreatedAt           time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt           time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyRecord) TableName() string { return "idempotency_records" }

// Completed reports whether the record has reached its terminal state and
// carries a replayable response.
func (r IdempotencyRecord) Completed() bool {
	return r.State == IdempotencyStateCompleted && r.ResponseStatusCode != nil && r.ResponseBody != nil
}
