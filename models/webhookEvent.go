package models

import "time"

type WebhookEventStatus string

const (
	WebhookEventStatusStarted   WebhookEventStatus = "STARTED"
	WebhookEventStatusSucceeded WebhookEventStatus = "SUCCEEDED"
	WebhookEventStatusFailed    WebhookEventStatus = "FAILED"
)

// WebhookEvent provides durable, DB-backed dedupe for webhook deliveries.
// Unique constraint: (tenant_id, handler_name, request_id).
type WebhookEvent struct {
	ID          int                `gorm:"primary_key" json:"id"`
	TenantId    string             `gorm:"size:64;not null;index:uniq_webhook_event,unique" json:"tenant_id"`
	HandlerName string             `gorm:"size:100;not null;index:uniq_webhook_event,unique" json:"handler_name"`
	RequestId   string             `gorm:"size:255;not null;index:uniq_webhook_event,unique" json:"request_id"`
	Status      WebhookEventStatus `gorm:"size:20;not null;index" json:"status"`
	LastError   *string            `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}
