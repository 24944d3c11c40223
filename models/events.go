package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Normalized events. The ingress layer decodes the vendor webhook into these
// before anything touches the database; tenant and provider ids travel as
// explicit arguments next to them, never as ambient session state.

type PaymentEvent struct {
	ExternalId             string          `json:"payment_id" validate:"required"`
	VendorStatus           string          `json:"status"`
	PaymentMethod          string          `json:"payment_method"`
	PlanSubscriptionId     int             `json:"plan_subscription_id"`
	LastPlanSubscriptionId int             `json:"last_plan_subscription_id"`
	PlanId                 int             `json:"plan_id"`
	PlanSlug               string          `json:"plan_slug"`
	PlanPrice              decimal.Decimal `json:"plan_price"`
	TransactionAmount      decimal.Decimal `json:"transaction_amount"`
	TransactionDate        *time.Time      `json:"transaction_date"`
}

type MerchantOrderEvent struct {
	ExternalId         string          `json:"merchant_order_id" validate:"required"`
	VendorStatus       string          `json:"status"`
	OrderStatus        string          `json:"order_status"`
	PlanSubscriptionId int             `json:"plan_subscription_id"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`

	// Payments embedded in the order resource; each is folded through the
	// payment store within the same unit of work as the order upsert.
	Payments []PaymentEvent `json:"payments" validate:"dive"`
}

type InvoicePaymentEvent struct {
	InvoiceCode       string          `json:"invoice_code" validate:"required"`
	ExternalId        string          `json:"payment_id" validate:"required"`
	VendorStatus      string          `json:"status"`
	PaymentMethod     string          `json:"payment_method"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	TransactionDate   *time.Time      `json:"transaction_date"`
}
