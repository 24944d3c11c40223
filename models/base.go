package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/easybudget/billing_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PublishNotification implements the transactional outbox: it writes the
// notification record inside the caller's DB transaction but does NOT publish
// to Pub/Sub. Publishing happens asynchronously after commit, so a broken
// notification pipeline can never roll back a financial state change.
func PublishNotification(ctx context.Context, tx *gorm.DB, tenantId string, providerId string, eventType string, refType NotificationReferenceType, refId string, obj interface{}) error {
	payload, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	record := NotificationRecord{
		TenantId:      tenantId,
		ProviderId:    providerId,
		EventType:     eventType,
		ReferenceType: refType,
		ReferenceId:   refId,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
		PublishStatus: NotificationPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// Subscription period arithmetic. The paid period is one month; the end date
// carries a 5-day grace window past the next charge.
func SubscriptionEndDate(from time.Time) time.Time {
	return from.AddDate(0, 0, 35)
}

func NextPaymentDate(from time.Time) time.Time {
	return from.AddDate(0, 1, 0)
}
