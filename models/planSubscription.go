package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanSubscription is one provider's enrollment in one plan for one period.
// Invariant: at most one row with status = active per (tenant_id, provider_id)
// after any transaction commits. The reconciler owns every status write.
type PlanSubscription struct {
	ID         int                `gorm:"primary_key" json:"id"`
	TenantId   string             `gorm:"size:64;not null;index:idx_sub_scope" json:"tenant_id"`
	ProviderId string             `gorm:"size:64;not null;index:idx_sub_scope" json:"provider_id"`
	PlanId     int                `gorm:"not null;index" json:"plan_id"`
	Plan       *Plan              `json:"plan,omitempty"`
	Status     SubscriptionStatus `gorm:"size:20;not null;index:idx_sub_scope" json:"status"`

	PricePaid     decimal.Decimal `gorm:"type:decimal(20,8)" json:"price_paid"`
	PaymentMethod string          `gorm:"size:50" json:"payment_method"`
	// External payment reference of the settling payment, if any.
	PaymentId *string `gorm:"size:255" json:"payment_id"`

	StartDate       time.Time  `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	LastPaymentDate *time.Time `json:"last_payment_date"`
	NextPaymentDate *time.Time `json:"next_payment_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPlanSubscription struct {
	PlanId int `json:"plan_id" binding:"required"`
}

func (s *PlanSubscription) IsTerminal() bool {
	return s.Status == SubscriptionStatusCanceled || s.Status == SubscriptionStatusExpired
}
