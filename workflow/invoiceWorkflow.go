package workflow

import (
	"context"
	"time"

	"bitbucket.org/easybudget/billing_backend/models"
	"bitbucket.org/easybudget/billing_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceOutcome reports what one invoice payment callback did.
type InvoiceOutcome struct {
	Invoice       *models.Invoice
	AlreadyExists bool
}

// ProcessInvoicePaymentEvent applies one payment callback to an invoice.
// Invoice has no separate payment sub-table, so the duplicate-delivery check
// compares the applied (status, payment_id, payment_method) tuple directly.
// Overdue is derived here: a pending-mapped payment for an invoice past its
// due date writes overdue, never pending.
func ProcessInvoicePaymentEvent(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, tenantId string, ev *models.InvoicePaymentEvent) (*InvoiceOutcome, error) {
	if err := utils.ValidateStruct(ev); err != nil {
		return nil, err
	}

	status, known := models.MapVendorPaymentStatus(ev.VendorStatus)
	if !known {
		logger.WithFields(logrus.Fields{
			"module":        "invoiceWorkflow",
			"tenant_id":     tenantId,
			"invoice_code":  ev.InvoiceCode,
			"vendor_status": ev.VendorStatus,
		}).Warn("unrecognized vendor payment status; treating as pending")
	}

	invoice, err := models.GetInvoiceByCode(
		tx.Clauses(clause.Locking{Strength: "UPDATE"}), tenantId, ev.InvoiceCode)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	slug := models.EffectiveStatusSlug(models.InvoiceStatusForPayment(status), invoice.DueDate, now)
	statusRow, err := models.GetInvoiceStatusBySlug(tx, slug)
	if err != nil {
		return nil, err
	}

	if invoice.MatchesPaymentObservation(statusRow.ID, ev.ExternalId, ev.PaymentMethod) {
		return &InvoiceOutcome{Invoice: invoice, AlreadyExists: true}, nil
	}

	transactionDate := ev.TransactionDate
	if transactionDate == nil {
		transactionDate = &now
	}
	if err := tx.Model(&models.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]interface{}{
			"invoice_status_id":  statusRow.ID,
			"payment_id":         ev.ExternalId,
			"payment_method":     ev.PaymentMethod,
			"transaction_amount": ev.TransactionAmount,
			"transaction_date":   transactionDate,
		}).Error; err != nil {
		return nil, err
	}

	invoice.InvoiceStatusId = statusRow.ID
	invoice.PaymentId = &ev.ExternalId
	invoice.PaymentMethod = ev.PaymentMethod
	invoice.TransactionAmount = ev.TransactionAmount
	invoice.TransactionDate = transactionDate

	if err := models.PublishNotification(ctx, tx, tenantId, "",
		models.NotificationEventInvoiceStatusChanged,
		models.NotificationReferenceTypeInvoice, invoice.Code, invoice); err != nil {
		return nil, err
	}

	return &InvoiceOutcome{Invoice: invoice}, nil
}
