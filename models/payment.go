package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment mirrors the processor's payment object. One external payment id maps
// to exactly one row per (tenant, provider); redelivery updates, never
// duplicates. The unique index backs the race-safe insert-then-retry-as-update
// path in the payment store.
type Payment struct {
	ID         int    `gorm:"primary_key" json:"id"`
	TenantId   string `gorm:"size:64;not null;uniqueIndex:uniq_payment_natural" json:"tenant_id"`
	ProviderId string `gorm:"size:64;not null;uniqueIndex:uniq_payment_natural" json:"provider_id"`
	ExternalId string `gorm:"size:255;not null;uniqueIndex:uniq_payment_natural" json:"external_id"`

	PlanSubscriptionId int                 `gorm:"index" json:"plan_subscription_id"`
	Status             VendorPaymentStatus `gorm:"size:30;not null" json:"status"`
	PaymentMethod      string              `gorm:"size:50" json:"payment_method"`
	TransactionAmount  decimal.Decimal     `gorm:"type:decimal(20,8)" json:"transaction_amount"`
	TransactionDate    *time.Time          `json:"transaction_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SameObservation reports whether an incoming event carries nothing new for
// this row: a pure vendor retry that must be a no-op.
func (p *Payment) SameObservation(status VendorPaymentStatus, method string, amount decimal.Decimal) bool {
	return p.Status == status &&
		p.PaymentMethod == method &&
		p.TransactionAmount.Equal(amount)
}

// IsTerminalSuccess marks payment rows that must not be flipped by the cascade
// cancellation of superseded records.
func (p *Payment) IsTerminalSuccess() bool {
	return p.Status == VendorPaymentStatusApproved || p.Status == VendorPaymentStatusRecovered
}
