// Package domain defines the persistence models for merchants, API keys,
// customers, payment intents, and webhook records. These types are mapped
// with GORM and form the core data layer of the payments API.
//
// Every row is owned by exactly one merchant (the tenant boundary); queries
// in the repo layer always scope by merchant_id so cross-tenant reads are
// structurally impossible.
package domain

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Merchant statuses.
const (
	MerchantStatusActive    = "ACTIVE"
	MerchantStatusSuspended = "SUSPENDED"
)

// Payment intent statuses.
const (
	PaymentIntentStatusRequiresConfirmation = "requires_confirmation"
	PaymentIntentStatusCaptured             = "captured"
)

// WebhookDeliveryStatusPending marks a freshly queued delivery. Only the
// creation of PENDING rows is in scope; delivery scheduling/retry is handled
// by an external worker.
const WebhookDeliveryStatusPending = "PENDING"

// EventPaymentIntentCreated is the event type emitted when a payment intent
// is created; webhook endpoints subscribe to it by name.
const EventPaymentIntentCreated = "payment_intent.created"

// Merchant represents a tenant of the platform. All customer, payment,
// ledger, and idempotency data hangs off a merchant.
type Merchant struct {
	ID        string         `json:"id"     gorm:"type:char(36);primaryKey"`
	Name      string         `json:"name"   gorm:"type:varchar(200);not null"`
	Status    string         `json:"status" gorm:"type:varchar(16);not null;default:'ACTIVE'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"      gorm:"index"`
}

// TableName returns the database table name for Merchant.
func (Merchant) TableName() string { return "merchants" }

// APIKey is a hashed credential used to authenticate a merchant. Only the
// SHA-256 hash of the raw key is stored; the prefix is kept for display.
//
// Fields:
//   - KeyHash: hex SHA-256 of the raw bearer token (unique).
//   - Scopes: comma-separated scope names; carried as data, not enforced.
//   - LastUsedAt: updated best-effort on successful authentication.
type APIKey struct {
	ID         string         `json:"id"           gorm:"type:char(36);primaryKey"`
	MerchantID string         `json:"merchant_id"  gorm:"type:char(36);not null;index"`
	Name       string         `json:"name"         gorm:"type:varchar(200);not null"`
	KeyHash    string         `json:"-"            gorm:"type:char(64);not null;uniqueIndex:ux_api_keys_hash"`
	KeyPrefix  string         `json:"key_prefix"   gorm:"type:varchar(16);not null"`
	Role       string         `json:"role"         gorm:"type:varchar(32);not null;default:'standard'"`
	Scopes     string         `json:"scopes"       gorm:"type:text;not null;default:''"`
	IsActive   bool           `json:"is_active"    gorm:"not null;default:true"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"            gorm:"index"`

	// Merchant is the owning tenant, preloaded during authentication.
	Merchant Merchant `json:"-" gorm:"foreignKey:MerchantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for APIKey.
func (APIKey) TableName() string { return "api_keys" }

// Customer is a merchant-scoped payer record. All fields besides the
// merchant scope are optional; metadata is an opaque JSON document.
type Customer struct {
	ID         string         `json:"id"                    gorm:"type:char(36);primaryKey"`
	MerchantID string         `json:"merchant_id"           gorm:"type:char(36);not null;index:idx_customers_merchant"`
	ExternalID *string        `json:"external_id,omitempty" gorm:"type:varchar(128)"`
	Email      *string        `json:"email,omitempty"       gorm:"type:varchar(320)"`
	Name       *string        `json:"name,omitempty"        gorm:"type:varchar(200)"`
	Metadata   string         `json:"metadata,omitempty"    gorm:"type:text"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"                     gorm:"index"`
}

// TableName returns the database table name for Customer.
func (Customer) TableName() string { return "customers" }

// PaymentIntent represents a request to collect a payment. Amount is an
// integer in the smallest currency unit; no fractional amounts are stored
// anywhere in the system.
type PaymentIntent struct {
	ID                 string         `json:"id"                   gorm:"type:char(36);primaryKey"`
	MerchantID         string         `json:"merchant_id"          gorm:"type:char(36);not null;index:idx_intents_merchant"`
	CustomerID         *string        `json:"customer_id"          gorm:"type:char(36)"`
	Amount             int64          `json:"amount"               gorm:"not null"`
	Currency           string         `json:"currency"             gorm:"type:char(3);not null"`
	Status             string         `json:"status"               gorm:"type:varchar(32);not null"`
	PaymentMethodToken string         `json:"payment_method_token" gorm:"type:varchar(128);not null"`
	IdempotencyKey     string         `json:"-"                    gorm:"type:varchar(200);not null;default:''"`
	Metadata           string         `json:"metadata,omitempty"   gorm:"type:text"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `json:"-"                    gorm:"index"`
}

// TableName returns the database table name for PaymentIntent.
func (PaymentIntent) TableName() string { return "payment_intents" }

// WebhookEndpoint is a merchant-registered URL subscribed to a set of event
// types (comma-separated). Inactive endpoints never receive deliveries.
type WebhookEndpoint struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	MerchantID string         `json:"merchant_id" gorm:"type:char(36);not null;index"`
	URL        string         `json:"url"         gorm:"type:varchar(2048);not null"`
	EventTypes string         `json:"event_types" gorm:"type:text;not null;default:''"`
	IsActive   bool           `json:"is_active"   gorm:"not null;default:true"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for WebhookEndpoint.
func (WebhookEndpoint) TableName() string { return "webhook_endpoints" }

// WebhookDelivery is one queued delivery of an event payload to one
// endpoint. Rows are created PENDING inside the same transaction as the
// event that produced them; an external dispatcher owns the rest of the
// lifecycle.
type WebhookDelivery struct {
	ID                string         `json:"id"                  gorm:"type:char(36);primaryKey"`
	MerchantID        string         `json:"merchant_id"         gorm:"type:char(36);not null;index"`
	WebhookEndpointID string         `json:"webhook_endpoint_id" gorm:"type:char(36);not null;index"`
	EventType         string         `json:"event_type"          gorm:"type:varchar(64);not null"`
	Payload           string         `json:"payload"             gorm:"type:text;not null"`
	Status            string         `json:"status"              gorm:"type:varchar(16);not null;default:'PENDING'"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-"                   gorm:"index"`

	// Endpoint is the target of this delivery; deliveries are cascade-deleted
	// if their endpoint is removed.
	Endpoint WebhookEndpoint `json:"-" gorm:"foreignKey:WebhookEndpointID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for WebhookDelivery.
func (WebhookDelivery) TableName() string { return "webhook_deliveries" }

// SubscribesTo reports whether the endpoint's comma-separated EventTypes
// list contains eventType.
func (e WebhookEndpoint) SubscribesTo(eventType string) bool {
	for _, t := range strings.Split(e.EventTypes, ",") {
		if strings.TrimSpace(t) == eventType {
			return true
		}
	}
	return false
}
