package models

import (
	"time"

	"bitbucket.org/easybudget/billing_backend/config"
)

// NotificationRecord is the outbox row behind PublishNotification. Written in
// the event transaction, drained by the notification dispatcher after commit.
type NotificationRecord struct {
	ID            int                       `gorm:"primary_key" json:"id"`
	TenantId      string                    `gorm:"size:64;not null;index" json:"tenant_id"`
	ProviderId    string                    `gorm:"size:64;index" json:"provider_id"`
	EventType     string                    `gorm:"size:100;not null" json:"event_type"`
	ReferenceType NotificationReferenceType `gorm:"size:50;not null;index:idx_notif_ref" json:"reference_type"`
	ReferenceId   string                    `gorm:"size:255;index:idx_notif_ref" json:"reference_id"`
	Payload       []byte                    `gorm:"type:json" json:"payload"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	CorrelationId string                    `gorm:"size:64" json:"correlation_id"`

	PublishStatus    NotificationPublishStatus `gorm:"size:20;not null;index" json:"publish_status"`
	PublishAttempts  int                       `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time                `json:"next_attempt_at"`
	LockedAt         *time.Time                `json:"locked_at"`
	LockedBy         *string                   `gorm:"size:64" json:"locked_by"`
	PublishedAt      *time.Time                `json:"published_at"`
	PubSubMessageId  *string                   `gorm:"size:255" json:"pub_sub_message_id"`
	LastPublishError *string                   `gorm:"type:text" json:"last_publish_error"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToNotificationMessage(rec NotificationRecord) config.NotificationMessage {
	return config.NotificationMessage{
		ID:            rec.ID,
		TenantId:      rec.TenantId,
		ProviderId:    rec.ProviderId,
		EventType:     rec.EventType,
		ReferenceType: string(rec.ReferenceType),
		ReferenceId:   rec.ReferenceId,
		Payload:       rec.Payload,
		OccurredAt:    rec.OccurredAt,
		CorrelationId: rec.CorrelationId,
	}
}
