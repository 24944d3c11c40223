package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/easybudget/billing_backend/config"
	"bitbucket.org/easybudget/billing_backend/models"
	"bitbucket.org/easybudget/billing_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestSubscription handles a provider asking to enroll in a plan.
// A pending subscription for the same plan is returned unchanged, so identical
// retries do not pile up pending rows. A pending subscription for a different
// plan is canceled first. The zero-cost plan activates immediately; paid plans
// wait for their first settlement.
func RequestSubscription(ctx context.Context, tenantId string, providerId string, input *models.NewPlanSubscription) (*models.PlanSubscription, error) {
	plan, err := models.GetPlan(ctx, input.PlanId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var result *models.PlanSubscription
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireTenantReconcileLock(tx, tenantId); err != nil {
			return err
		}
		// GET_LOCK survives COMMIT; release on the live transaction.
		defer ReleaseTenantReconcileLock(tx, tenantId)

		var pending models.PlanSubscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND provider_id = ? AND status = ?", tenantId, providerId, models.SubscriptionStatusPending).
			Order("id DESC").
			First(&pending).Error
		if err == nil {
			if pending.PlanId == plan.ID {
				result = &pending
				return nil
			}
			if err := cancelSubscriptionRow(tx, &pending); err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		sub := models.PlanSubscription{
			TenantId:   tenantId,
			ProviderId: providerId,
			PlanId:     plan.ID,
			Status:     models.SubscriptionStatusPending,
			PricePaid:  plan.Price,
			StartDate:  now,
		}
		eventType := models.NotificationEventSubscriptionRequested
		if plan.IsFree() {
			// Free plan entitles immediately; the invariant still holds because
			// any other active row is canceled in the same transaction.
			if err := cancelOtherActiveSubscriptions(tx, tenantId, providerId, 0); err != nil {
				return err
			}
			sub.Status = models.SubscriptionStatusActive
			end := models.SubscriptionEndDate(now)
			next := models.NextPaymentDate(now)
			sub.EndDate = &end
			sub.NextPaymentDate = &next
			eventType = models.NotificationEventSubscriptionActivated
		}
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}

		if err := models.PublishNotification(ctx, tx, tenantId, providerId, eventType,
			models.NotificationReferenceTypeSubscription, itoa(sub.ID), &sub); err != nil {
			return err
		}
		result = &sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applySettlement drives the subscription state machine from one mapped
// payment observation. Caller holds the event transaction and the tenant
// reconcile lock.
func applySettlement(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, tenantId string, providerId string, status models.VendorPaymentStatus, ev *models.PaymentEvent, payment *models.Payment) (*models.PlanSubscription, error) {
	var sub models.PlanSubscription
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ? AND provider_id = ?", ev.PlanSubscriptionId, tenantId, providerId).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	now := time.Now().UTC()
	target := models.SubscriptionStatusForPayment(status)

	switch target {
	case models.SubscriptionStatusActive:
		end := models.SubscriptionEndDate(now)
		next := models.NextPaymentDate(now)
		updates := map[string]interface{}{
			"status":            models.SubscriptionStatusActive,
			"price_paid":        ev.TransactionAmount,
			"payment_method":    ev.PaymentMethod,
			"payment_id":        payment.ExternalId,
			"last_payment_date": now,
			"next_payment_date": next,
			"end_date":          end,
		}
		if ev.PlanId != 0 {
			updates["plan_id"] = ev.PlanId
		}
		if err := tx.Model(&models.PlanSubscription{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
		sub.Status = models.SubscriptionStatusActive
		sub.PricePaid = ev.TransactionAmount
		sub.PaymentMethod = ev.PaymentMethod
		sub.PaymentId = &payment.ExternalId
		sub.LastPaymentDate = &now
		sub.NextPaymentDate = &next
		sub.EndDate = &end
		if ev.PlanId != 0 {
			sub.PlanId = ev.PlanId
		}

		// At-most-one-active: the previously entitling subscription is
		// superseded in the same transaction, under the same lock.
		if err := cancelOtherActiveSubscriptions(tx, tenantId, providerId, sub.ID); err != nil {
			return nil, err
		}
		if ev.LastPlanSubscriptionId != 0 && ev.LastPlanSubscriptionId != sub.ID {
			if err := cancelSubscriptionById(tx, tenantId, providerId, ev.LastPlanSubscriptionId); err != nil {
				return nil, err
			}
		}

		if err := models.PublishNotification(ctx, tx, tenantId, providerId,
			models.NotificationEventSubscriptionActivated,
			models.NotificationReferenceTypeSubscription, itoa(sub.ID), &sub); err != nil {
			return nil, err
		}

	case models.SubscriptionStatusPending:
		// A pending payment never moves status: it neither regresses an
		// active subscription nor advances a pending one. Metadata only.
		updates := map[string]interface{}{
			"price_paid":     ev.TransactionAmount,
			"payment_method": ev.PaymentMethod,
			"payment_id":     payment.ExternalId,
		}
		if ev.PlanId != 0 {
			updates["plan_id"] = ev.PlanId
		}
		if err := tx.Model(&models.PlanSubscription{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
		sub.PricePaid = ev.TransactionAmount
		sub.PaymentMethod = ev.PaymentMethod
		sub.PaymentId = &payment.ExternalId
		if ev.PlanId != 0 {
			sub.PlanId = ev.PlanId
		}

	case models.SubscriptionStatusCanceled:
		if sub.IsTerminal() {
			return &sub, nil
		}
		if err := cancelSubscriptionRow(tx, &sub); err != nil {
			return nil, err
		}
		if err := models.PublishNotification(ctx, tx, tenantId, providerId,
			models.NotificationEventSubscriptionCanceled,
			models.NotificationReferenceTypeSubscription, itoa(sub.ID), &sub); err != nil {
			return nil, err
		}

	default:
		logger.WithFields(logrus.Fields{
			"module":          "subscriptionWorkflow",
			"tenant_id":       tenantId,
			"provider_id":     providerId,
			"subscription_id": sub.ID,
			"target":          target,
		}).Warn("unhandled settlement target; leaving subscription untouched")
	}

	return &sub, nil
}

// CancelSubscription terminates one subscription. Canceling an already
// canceled or expired row is a no-op success.
func CancelSubscription(ctx context.Context, tenantId string, providerId string, subscriptionId int) (*models.PlanSubscription, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var sub models.PlanSubscription
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ? AND provider_id = ?", subscriptionId, tenantId, providerId).
		First(&sub).Error
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	if sub.IsTerminal() {
		tx.Rollback()
		return &sub, nil
	}

	if err := cancelSubscriptionRow(tx, &sub); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := models.PublishNotification(ctx, tx, tenantId, providerId,
		models.NotificationEventSubscriptionCanceled,
		models.NotificationReferenceTypeSubscription, itoa(sub.ID), &sub); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// ExpireDueSubscriptions is the time-based lapse path: active subscriptions
// whose end date has passed become expired. No cascade applies; an expiring
// subscription has no successor yet. Returns the number of rows expired.
func ExpireDueSubscriptions(ctx context.Context, db *gorm.DB, logger *logrus.Logger, now time.Time) (int, error) {
	expired := 0
	for {
		var batch []models.PlanSubscription
		tx := db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return expired, tx.Error
		}

		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND end_date IS NOT NULL AND end_date < ?", models.SubscriptionStatusActive, now).
			Order("id ASC").
			Limit(100).
			Find(&batch).Error
		if err != nil {
			tx.Rollback()
			return expired, err
		}
		if len(batch) == 0 {
			tx.Rollback()
			return expired, nil
		}

		for i := range batch {
			sub := &batch[i]
			if err := tx.Model(&models.PlanSubscription{}).
				Where("id = ?", sub.ID).
				Update("status", models.SubscriptionStatusExpired).Error; err != nil {
				tx.Rollback()
				return expired, err
			}
			sub.Status = models.SubscriptionStatusExpired
			if err := models.PublishNotification(ctx, tx, sub.TenantId, sub.ProviderId,
				models.NotificationEventSubscriptionExpired,
				models.NotificationReferenceTypeSubscription, itoa(sub.ID), sub); err != nil {
				tx.Rollback()
				return expired, err
			}
		}
		if err := tx.Commit().Error; err != nil {
			return expired, err
		}
		expired += len(batch)
		logger.WithFields(logrus.Fields{
			"module": "subscriptionWorkflow",
			"count":  len(batch),
		}).Info("expired due subscriptions batch")
	}
}

// cancelOtherActiveSubscriptions enforces at-most-one-active with a locking
// read: every active row other than keepId is read FOR UPDATE and canceled.
func cancelOtherActiveSubscriptions(tx *gorm.DB, tenantId string, providerId string, keepId int) error {
	var others []models.PlanSubscription
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND provider_id = ? AND status = ? AND id <> ?",
			tenantId, providerId, models.SubscriptionStatusActive, keepId).
		Find(&others).Error
	if err != nil {
		return err
	}
	for i := range others {
		if err := cancelSubscriptionRow(tx, &others[i]); err != nil {
			return err
		}
	}
	return nil
}

func cancelSubscriptionById(tx *gorm.DB, tenantId string, providerId string, id int) error {
	var sub models.PlanSubscription
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ? AND provider_id = ?", id, tenantId, providerId).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if sub.IsTerminal() {
		return nil
	}
	return cancelSubscriptionRow(tx, &sub)
}

func cancelSubscriptionRow(tx *gorm.DB, sub *models.PlanSubscription) error {
	now := time.Now().UTC()
	if err := tx.Model(&models.PlanSubscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]interface{}{
			"status":   models.SubscriptionStatusCanceled,
			"end_date": now,
		}).Error; err != nil {
		return err
	}
	sub.Status = models.SubscriptionStatusCanceled
	sub.EndDate = &now
	return nil
}
