package workflow

import (
	"context"
	"errors"

	"bitbucket.org/easybudget/billing_backend/models"
	"bitbucket.org/easybudget/billing_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentOutcome reports what one payment event did. AlreadyExists means the
// delivery was a pure vendor retry and nothing was written.
type PaymentOutcome struct {
	Payment       *models.Payment
	Subscription  *models.PlanSubscription
	AlreadyExists bool
}

// ProcessPaymentEvent folds one normalized payment event into state. It runs
// entirely inside the caller's transaction: record upsert, cascade
// cancellation of superseded records, subscription settlement, and the outbox
// write are one flat unit of work.
//
// A missing subscription is reported as utils.ErrorRecordNotFound; the caller
// acks the webhook anyway since retrying cannot resolve it.
func ProcessPaymentEvent(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, tenantId string, providerId string, ev *models.PaymentEvent) (*PaymentOutcome, error) {
	if err := utils.ValidateStruct(ev); err != nil {
		return nil, err
	}

	status, known := models.MapVendorPaymentStatus(ev.VendorStatus)
	if !known {
		logger.WithFields(logrus.Fields{
			"module":        "paymentWorkflow",
			"tenant_id":     tenantId,
			"provider_id":   providerId,
			"external_id":   ev.ExternalId,
			"vendor_status": ev.VendorStatus,
		}).Warn("unrecognized vendor payment status; treating as pending")
	}

	payment, created, changed, err := upsertPayment(tx, tenantId, providerId, ev, status)
	if err != nil {
		return nil, err
	}

	if created && ev.PlanSubscriptionId != 0 {
		if err := cancelSupersededPayments(tx, tenantId, providerId, ev.PlanSubscriptionId, payment.ID); err != nil {
			return nil, err
		}
	}

	outcome := &PaymentOutcome{Payment: payment, AlreadyExists: !created && !changed}

	if ev.PlanSubscriptionId != 0 && !outcome.AlreadyExists {
		sub, err := applySettlement(ctx, tx, logger, tenantId, providerId, status, ev, payment)
		if err != nil {
			return nil, err
		}
		outcome.Subscription = sub
	}

	return outcome, nil
}

// upsertPayment is the idempotency boundary of the pipeline: insert on first
// sight, and on a duplicate-key race or redelivery retry as an update. An
// observation identical to the stored row is a no-op.
func upsertPayment(tx *gorm.DB, tenantId string, providerId string, ev *models.PaymentEvent, status models.VendorPaymentStatus) (payment *models.Payment, created bool, changed bool, err error) {
	row := models.Payment{
		TenantId:           tenantId,
		ProviderId:         providerId,
		ExternalId:         ev.ExternalId,
		PlanSubscriptionId: ev.PlanSubscriptionId,
		Status:             status,
		PaymentMethod:      ev.PaymentMethod,
		TransactionAmount:  ev.TransactionAmount,
		TransactionDate:    ev.TransactionDate,
	}
	if err := tx.Create(&row).Error; err == nil {
		return &row, true, true, nil
	} else if !isDuplicateKeyErr(err) {
		return nil, false, false, err
	}

	var existing models.Payment
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND provider_id = ? AND external_id = ?", tenantId, providerId, ev.ExternalId).
		First(&existing).Error; err != nil {
		return nil, false, false, err
	}

	if existing.SameObservation(status, ev.PaymentMethod, ev.TransactionAmount) {
		return &existing, false, false, nil
	}

	// Update observation fields only; external_id and creation metadata are
	// immutable.
	updates := map[string]interface{}{
		"status":             status,
		"payment_method":     ev.PaymentMethod,
		"transaction_amount": ev.TransactionAmount,
	}
	if ev.TransactionDate != nil {
		updates["transaction_date"] = ev.TransactionDate
	}
	if ev.PlanSubscriptionId != 0 {
		updates["plan_subscription_id"] = ev.PlanSubscriptionId
	}
	if err := tx.Model(&models.Payment{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return nil, false, false, err
	}

	existing.Status = status
	existing.PaymentMethod = ev.PaymentMethod
	existing.TransactionAmount = ev.TransactionAmount
	if ev.TransactionDate != nil {
		existing.TransactionDate = ev.TransactionDate
	}
	if ev.PlanSubscriptionId != 0 {
		existing.PlanSubscriptionId = ev.PlanSubscriptionId
	}
	return &existing, false, true, nil
}

// cancelSupersededPayments flips the previously observed record for the same
// subscription to cancelled, unless it already settled successfully. There is
// at most one such record per subscription in practice.
func cancelSupersededPayments(tx *gorm.DB, tenantId string, providerId string, planSubscriptionId int, excludeId int) error {
	var previous models.Payment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND provider_id = ? AND plan_subscription_id = ? AND id <> ?",
			tenantId, providerId, planSubscriptionId, excludeId).
		Order("id DESC").
		First(&previous).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if previous.IsTerminalSuccess() || previous.Status == models.VendorPaymentStatusCancelled {
		return nil
	}
	return tx.Model(&models.Payment{}).
		Where("id = ?", previous.ID).
		Update("status", models.VendorPaymentStatusCancelled).Error
}
