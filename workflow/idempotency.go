package workflow

import (
	"errors"
	"time"

	"bitbucket.org/easybudget/billing_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var ErrWebhookEventInProgress = errors.New("webhook event in progress")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// BeginWebhookEvent inserts STARTED. If SUCCEEDED exists, returns (true, nil)
// meaning "skip safely": the delivery was already fully processed and can be
// acked without touching state again.
func BeginWebhookEvent(db *gorm.DB, tenantId, handlerName, requestId string) (skip bool, err error) {
	record := models.WebhookEvent{
		TenantId:    tenantId,
		HandlerName: handlerName,
		RequestId:   requestId,
		Status:      models.WebhookEventStatusStarted,
	}
	if err := db.Create(&record).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.WebhookEvent
	if err := db.Where("tenant_id = ? AND handler_name = ? AND request_id = ?", tenantId, handlerName, requestId).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.WebhookEventStatusSucceeded:
		return true, nil
	case models.WebhookEventStatusStarted:
		// Another worker is currently processing the same delivery: ask the
		// vendor to retry. A stale STARTED row is taken over.
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return false, ErrWebhookEventInProgress
		}
		return false, db.Model(&models.WebhookEvent{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.WebhookEventStatusStarted, "last_error": nil}).Error
	default:
		return false, db.Model(&models.WebhookEvent{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.WebhookEventStatusStarted, "last_error": nil}).Error
	}
}

func MarkWebhookEventSucceeded(db *gorm.DB, tenantId, handlerName, requestId string) error {
	return db.Model(&models.WebhookEvent{}).
		Where("tenant_id = ? AND handler_name = ? AND request_id = ?", tenantId, handlerName, requestId).
		Updates(map[string]interface{}{"status": models.WebhookEventStatusSucceeded, "last_error": nil}).Error
}

func MarkWebhookEventFailed(db *gorm.DB, tenantId, handlerName, requestId string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return db.Model(&models.WebhookEvent{}).
		Where("tenant_id = ? AND handler_name = ? AND request_id = ?", tenantId, handlerName, requestId).
		Updates(map[string]interface{}{"status": models.WebhookEventStatusFailed, "last_error": &msg}).Error
}
