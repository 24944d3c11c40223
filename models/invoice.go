package models

import (
	"context"
	"time"

	"bitbucket.org/easybudget/billing_backend/config"
	"bitbucket.org/easybudget/billing_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus is the invoice_statuses lookup table; reconciler writes
// reference rows here by slug.
type InvoiceStatus struct {
	ID        int               `gorm:"primary_key" json:"id"`
	Slug      InvoiceStatusSlug `gorm:"size:30;uniqueIndex;not null" json:"slug"`
	Name      string            `gorm:"size:50;not null" json:"name"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

type Invoice struct {
	ID         int    `gorm:"primary_key" json:"id"`
	TenantId   string `gorm:"size:64;not null;uniqueIndex:uniq_invoice_code" json:"tenant_id"`
	CustomerId int    `gorm:"index" json:"customer_id"`
	ServiceId  int    `gorm:"index" json:"service_id"`

	// Business-unique code per tenant; the external reference invoice payment
	// callbacks carry.
	Code string `gorm:"size:100;not null;uniqueIndex:uniq_invoice_code" json:"code"`
	// Capability token for unauthenticated public access to the invoice view.
	PublicHash string `gorm:"size:64;index" json:"public_hash"`

	InvoiceStatusId int            `gorm:"not null;index" json:"invoice_statuses_id"`
	InvoiceStatus   *InvoiceStatus `json:"invoice_status,omitempty"`

	PaymentId         *string         `gorm:"size:255" json:"payment_id"`
	PaymentMethod     string          `gorm:"size:50" json:"payment_method"`
	TransactionAmount decimal.Decimal `gorm:"type:decimal(20,8)" json:"transaction_amount"`
	TransactionDate   *time.Time      `json:"transaction_date"`
	DueDate           time.Time       `json:"due_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// EffectiveStatusSlug derives overdue: a pending invoice past its due date.
// Overdue is a derivation, never a mapper output.
func EffectiveStatusSlug(mapped InvoiceStatusSlug, dueDate time.Time, now time.Time) InvoiceStatusSlug {
	if mapped == InvoiceStatusSlugPending && dueDate.Before(now) {
		return InvoiceStatusSlugOverdue
	}
	return mapped
}

// MatchesPaymentObservation is the invoice-level duplicate check: Invoice has
// no separate payment sub-table, so retry detection compares the applied
// status/payment tuple directly.
func (inv *Invoice) MatchesPaymentObservation(statusId int, paymentId string, method string) bool {
	return inv.InvoiceStatusId == statusId &&
		inv.PaymentId != nil && *inv.PaymentId == paymentId &&
		inv.PaymentMethod == method
}

type NewInvoice struct {
	CustomerId        int             `json:"customer_id"`
	ServiceId         int             `json:"service_id"`
	Code              string          `json:"code" binding:"required"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	DueDate           time.Time       `json:"due_date"`
}

// CreateInvoice inserts a pending invoice. Status changes after creation go
// only through the invoice reconciler.
func CreateInvoice(ctx context.Context, tenantId string, input *NewInvoice) (*Invoice, error) {
	db := config.GetDB()

	pending, err := GetInvoiceStatusBySlug(db.WithContext(ctx), InvoiceStatusSlugPending)
	if err != nil {
		return nil, err
	}

	invoice := Invoice{
		TenantId:          tenantId,
		CustomerId:        input.CustomerId,
		ServiceId:         input.ServiceId,
		Code:              input.Code,
		PublicHash:        uuid.NewString(),
		InvoiceStatusId:   pending.ID,
		TransactionAmount: input.TransactionAmount,
		DueDate:           input.DueDate,
	}
	if err := db.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func GetInvoiceStatusBySlug(tx *gorm.DB, slug InvoiceStatusSlug) (*InvoiceStatus, error) {
	var status InvoiceStatus
	if err := tx.Where("slug = ?", slug).First(&status).Error; err != nil {
		return nil, utils.ReplaceNotFound(err)
	}
	return &status, nil
}

func GetInvoiceByCode(tx *gorm.DB, tenantId string, code string) (*Invoice, error) {
	var invoice Invoice
	err := tx.Where("tenant_id = ? AND code = ?", tenantId, code).First(&invoice).Error
	if err != nil {
		return nil, utils.ReplaceNotFound(err)
	}
	return &invoice, nil
}
