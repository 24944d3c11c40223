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

// MerchantOrderOutcome reports what one order event did.
type MerchantOrderOutcome struct {
	Order         *models.MerchantOrder
	AlreadyExists bool
}

// ProcessMerchantOrderEvent upserts the order record and folds any embedded
// payments through the payment store, all in the caller's transaction.
func ProcessMerchantOrderEvent(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, tenantId string, providerId string, ev *models.MerchantOrderEvent) (*MerchantOrderOutcome, error) {
	if err := utils.ValidateStruct(ev); err != nil {
		return nil, err
	}

	status, statusKnown := models.MapMerchantOrderStatus(ev.VendorStatus)
	orderStatus, orderStatusKnown := models.MapMerchantOrderPaymentStatus(ev.OrderStatus)
	if !statusKnown || !orderStatusKnown {
		logger.WithFields(logrus.Fields{
			"module":              "merchantOrderWorkflow",
			"tenant_id":           tenantId,
			"provider_id":         providerId,
			"external_id":         ev.ExternalId,
			"vendor_status":       ev.VendorStatus,
			"vendor_order_status": ev.OrderStatus,
		}).Warn("unrecognized merchant order status; using defaults")
	}

	order, alreadyExists, err := upsertMerchantOrder(tx, tenantId, providerId, ev, status, orderStatus)
	if err != nil {
		return nil, err
	}

	// Embedded payments are folded regardless of whether the order itself
	// changed: a retried order frame can still carry a new payment state.
	for i := range ev.Payments {
		pev := &ev.Payments[i]
		if pev.PlanSubscriptionId == 0 {
			pev.PlanSubscriptionId = ev.PlanSubscriptionId
		}
		if _, err := ProcessPaymentEvent(ctx, tx, logger, tenantId, providerId, pev); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				// Recoverable: the referenced subscription does not exist and
				// a vendor retry cannot fix that.
				logger.WithFields(logrus.Fields{
					"module":      "merchantOrderWorkflow",
					"tenant_id":   tenantId,
					"provider_id": providerId,
					"external_id": pev.ExternalId,
				}).Warn("embedded payment references unknown subscription; skipping")
				continue
			}
			return nil, err
		}
	}

	if !alreadyExists {
		if err := models.PublishNotification(ctx, tx, tenantId, providerId,
			models.NotificationEventMerchantOrderUpdated,
			models.NotificationReferenceTypeMerchantOrder, order.ExternalId, order); err != nil {
			return nil, err
		}
	}

	return &MerchantOrderOutcome{Order: order, AlreadyExists: alreadyExists}, nil
}

// upsertMerchantOrder mirrors the payment store: insert, retry the
// duplicate-key race as an update, and skip writes when nothing significant
// changed.
func upsertMerchantOrder(tx *gorm.DB, tenantId string, providerId string, ev *models.MerchantOrderEvent, status models.MerchantOrderStatus, orderStatus models.MerchantOrderPaymentStatus) (order *models.MerchantOrder, alreadyExists bool, err error) {
	row := models.MerchantOrder{
		TenantId:           tenantId,
		ProviderId:         providerId,
		ExternalId:         ev.ExternalId,
		PlanSubscriptionId: ev.PlanSubscriptionId,
		Status:             status,
		OrderStatus:        orderStatus,
		TotalAmount:        ev.TotalAmount,
		PaidAmount:         ev.PaidAmount,
	}
	if err := tx.Create(&row).Error; err == nil {
		return &row, false, nil
	} else if !isDuplicateKeyErr(err) {
		return nil, false, err
	}

	var existing models.MerchantOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND provider_id = ? AND external_id = ?", tenantId, providerId, ev.ExternalId).
		First(&existing).Error; err != nil {
		return nil, false, err
	}

	if !existing.HasSignificantChanges(status, orderStatus, ev.TotalAmount, ev.PaidAmount) {
		return &existing, true, nil
	}

	updates := map[string]interface{}{
		"status":       status,
		"order_status": orderStatus,
		"total_amount": ev.TotalAmount,
		"paid_amount":  ev.PaidAmount,
	}
	if ev.PlanSubscriptionId != 0 {
		updates["plan_subscription_id"] = ev.PlanSubscriptionId
	}
	if err := tx.Model(&models.MerchantOrder{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return nil, false, err
	}

	existing.Status = status
	existing.OrderStatus = orderStatus
	existing.TotalAmount = ev.TotalAmount
	existing.PaidAmount = ev.PaidAmount
	if ev.PlanSubscriptionId != 0 {
		existing.PlanSubscriptionId = ev.PlanSubscriptionId
	}
	return &existing, false, nil
}
