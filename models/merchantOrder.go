package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MerchantOrder mirrors the processor's order object, keyed like Payment.
type MerchantOrder struct {
	ID         int    `gorm:"primary_key" json:"id"`
	TenantId   string `gorm:"size:64;not null;uniqueIndex:uniq_morder_natural" json:"tenant_id"`
	ProviderId string `gorm:"size:64;not null;uniqueIndex:uniq_morder_natural" json:"provider_id"`
	ExternalId string `gorm:"size:255;not null;uniqueIndex:uniq_morder_natural" json:"external_id"`

	PlanSubscriptionId int                        `gorm:"index" json:"plan_subscription_id"`
	Status             MerchantOrderStatus        `gorm:"size:20;not null" json:"status"`
	OrderStatus        MerchantOrderPaymentStatus `gorm:"size:30;not null" json:"order_status"`
	TotalAmount        decimal.Decimal            `gorm:"type:decimal(20,8)" json:"total_amount"`
	PaidAmount         decimal.Decimal            `gorm:"type:decimal(20,8)" json:"paid_amount"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasSignificantChanges compares the stored row against incoming mapped
// values. Identical observations are vendor retries and must not be written.
func (o *MerchantOrder) HasSignificantChanges(status MerchantOrderStatus, orderStatus MerchantOrderPaymentStatus, totalAmount decimal.Decimal, paidAmount decimal.Decimal) bool {
	if o.Status != status {
		return true
	}
	if o.OrderStatus != orderStatus {
		return true
	}
	if !o.TotalAmount.Equal(totalAmount) {
		return true
	}
	if !o.PaidAmount.Equal(paidAmount) {
		return true
	}
	return false
}
