package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/easybudget/billing_backend/config"
	"bitbucket.org/easybudget/billing_backend/models"
	"bitbucket.org/easybudget/billing_backend/utils"
	"bitbucket.org/easybudget/billing_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer trace.Tracer = otel.Tracer("billing-webhooks")

const (
	TopicPayment       = "payment"
	TopicMerchantOrder = "merchant_order"

	handlerPaymentProcessor = "payment_processor_webhook"
	handlerInvoicePayment   = "invoice_payment_webhook"
)

// Envelope is the decoded processor notification. The vendor resource itself
// travels opaque in Data; the topic decides which event shape it decodes into.
type Envelope struct {
	TenantId   string          `json:"tenant_id" binding:"required"`
	ProviderId string          `json:"provider_id" binding:"required"`
	Topic      string          `json:"topic" binding:"required"`
	Data       json.RawMessage `json:"data" binding:"required"`
}

type InvoiceEnvelope struct {
	TenantId string          `json:"tenant_id" binding:"required"`
	Data     json.RawMessage `json:"data" binding:"required"`
}

// PaymentProcessorHandler ingests payment and merchant-order topics.
//
// Response contract: 200 acks the delivery (including recoverable failures
// the vendor cannot fix by retrying), 400 rejects a malformed payload, 500
// asks the vendor to retry.
func PaymentProcessorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		ctx, span := tracer.Start(c.Request.Context(), "webhooks.payment_processor")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		requestId := c.GetHeader("X-Request-Id")
		if requestId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-Request-Id header is required"})
			return
		}

		var env Envelope
		if err := c.ShouldBindJSON(&env); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if env.Topic != TopicPayment && env.Topic != TopicMerchantOrder {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported topic: " + env.Topic})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}

		handlerName := handlerPaymentProcessor + ":" + env.Topic
		skip, err := workflow.BeginWebhookEvent(db, env.TenantId, handlerName, requestId)
		if err != nil {
			if errors.Is(err, workflow.ErrWebhookEventInProgress) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "delivery is being processed"})
				return
			}
			config.LogError(logger, "webhooks.go", "PaymentProcessorHandler", "BeginWebhookEvent", env, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if skip {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate", "request_id": requestId})
			return
		}

		releaseLock := obtainTenantLock(c, logger, env.TenantId, requestId)
		defer releaseLock()

		var processErr error
		switch env.Topic {
		case TopicPayment:
			var ev models.PaymentEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				markMalformed(db, env.TenantId, handlerName, requestId, err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment payload"})
				return
			}
			processErr = runInEventTx(c, db, env.TenantId, func(tx *gorm.DB) error {
				_, err := workflow.ProcessPaymentEvent(c.Request.Context(), tx, logger, env.TenantId, env.ProviderId, &ev)
				return err
			})
		case TopicMerchantOrder:
			var ev models.MerchantOrderEvent
			if err := json.Unmarshal(env.Data, &ev); err != nil {
				markMalformed(db, env.TenantId, handlerName, requestId, err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid merchant order payload"})
				return
			}
			processErr = runInEventTx(c, db, env.TenantId, func(tx *gorm.DB) error {
				_, err := workflow.ProcessMerchantOrderEvent(c.Request.Context(), tx, logger, env.TenantId, env.ProviderId, &ev)
				return err
			})
		}

		finishDelivery(c, db, logger, env.TenantId, env.ProviderId, handlerName, requestId, processErr)
	}
}

// InvoicePaymentHandler ingests invoice payment callbacks. Invoices are
// tenant-scoped, not provider-scoped, so the envelope carries no provider id.
func InvoicePaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		ctx, span := tracer.Start(c.Request.Context(), "webhooks.invoice_payment")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		requestId := c.GetHeader("X-Request-Id")
		if requestId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-Request-Id header is required"})
			return
		}

		var env InvoiceEnvelope
		if err := c.ShouldBindJSON(&env); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}

		skip, err := workflow.BeginWebhookEvent(db, env.TenantId, handlerInvoicePayment, requestId)
		if err != nil {
			if errors.Is(err, workflow.ErrWebhookEventInProgress) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "delivery is being processed"})
				return
			}
			config.LogError(logger, "webhooks.go", "InvoicePaymentHandler", "BeginWebhookEvent", env, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if skip {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate", "request_id": requestId})
			return
		}

		releaseLock := obtainTenantLock(c, logger, env.TenantId, requestId)
		defer releaseLock()

		var ev models.InvoicePaymentEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			markMalformed(db, env.TenantId, handlerInvoicePayment, requestId, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice payment payload"})
			return
		}

		processErr := runInEventTx(c, db, env.TenantId, func(tx *gorm.DB) error {
			_, err := workflow.ProcessInvoicePaymentEvent(c.Request.Context(), tx, logger, env.TenantId, &ev)
			return err
		})
		finishDelivery(c, db, logger, env.TenantId, "", handlerInvoicePayment, requestId, processErr)
	}
}

// runInEventTx wraps one inbound event in a flat transaction guarded by the
// tenant reconcile lock. GET_LOCK is connection scoped and survives COMMIT, so
// the deferred release runs inside the transaction closure, on the live
// transaction, before gorm commits or rolls back. A release attempted after
// the transaction finished would hit sql.ErrTxDone and leak the lock into the
// connection pool.
func runInEventTx(c *gin.Context, db *gorm.DB, tenantId string, fn func(tx *gorm.DB) error) error {
	return db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := workflow.AcquireTenantReconcileLock(tx, tenantId); err != nil {
			return err
		}
		defer workflow.ReleaseTenantReconcileLock(tx, tenantId)
		return fn(tx)
	})
}

// finishDelivery maps the processing outcome to the response contract and the
// dedupe record. A recoverable miss is acked: the vendor retrying cannot
// create the missing row.
func finishDelivery(c *gin.Context, db *gorm.DB, logger *logrus.Logger, tenantId, providerId, handlerName, requestId string, processErr error) {
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	if processErr == nil {
		if err := workflow.MarkWebhookEventSucceeded(db, tenantId, handlerName, requestId); err != nil {
			config.LogError(logger, "webhooks.go", "finishDelivery", "MarkWebhookEventSucceeded", requestId, err)
		}
		c.JSON(http.StatusOK, gin.H{"status": "processed", "request_id": requestId, "correlation_id": cid})
		return
	}

	if errors.Is(processErr, utils.ErrorRecordNotFound) {
		logger.WithFields(logrus.Fields{
			"field":          handlerName,
			"tenant_id":      tenantId,
			"provider_id":    providerId,
			"request_id":     requestId,
			"correlation_id": cid,
		}).Warn("referenced record not found; acknowledging delivery")
		if err := workflow.MarkWebhookEventSucceeded(db, tenantId, handlerName, requestId); err != nil {
			config.LogError(logger, "webhooks.go", "finishDelivery", "MarkWebhookEventSucceeded", requestId, err)
		}
		c.JSON(http.StatusOK, gin.H{"status": "skipped", "reason": "record not found", "request_id": requestId, "correlation_id": cid})
		return
	}

	if isValidationError(processErr) {
		// A payload failing validation fails identically on every redelivery;
		// 400 tells the vendor to stop retrying it.
		if err := workflow.MarkWebhookEventFailed(db, tenantId, handlerName, requestId, processErr); err != nil {
			config.LogError(logger, "webhooks.go", "finishDelivery", "MarkWebhookEventFailed", requestId, err)
		}
		logger.WithFields(logrus.Fields{
			"field":          handlerName,
			"tenant_id":      tenantId,
			"provider_id":    providerId,
			"request_id":     requestId,
			"correlation_id": cid,
		}).Warn("rejecting delivery with invalid payload: " + processErr.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "request_id": requestId})
		return
	}

	if err := workflow.MarkWebhookEventFailed(db, tenantId, handlerName, requestId, processErr); err != nil {
		config.LogError(logger, "webhooks.go", "finishDelivery", "MarkWebhookEventFailed", requestId, err)
	}
	logger.WithFields(logrus.Fields{
		"field":          handlerName,
		"tenant_id":      tenantId,
		"provider_id":    providerId,
		"request_id":     requestId,
		"correlation_id": cid,
	}).Error("webhook processing failed: " + processErr.Error())
	// Non-2xx tells the processor to retry the delivery.
	c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed", "request_id": requestId})
}

// isValidationError reports whether err came from struct validation of the
// decoded event payload.
func isValidationError(err error) bool {
	var vErrs validator.ValidationErrors
	return errors.As(err, &vErrs)
}

func markMalformed(db *gorm.DB, tenantId, handlerName, requestId string, err error) {
	_ = workflow.MarkWebhookEventFailed(db, tenantId, handlerName, requestId, err)
}

// obtainTenantLock is a best-effort optimization. Reliability must not depend
// on Redis: the MySQL advisory lock in runInEventTx is the serialization
// authority.
func obtainTenantLock(c *gin.Context, logger *logrus.Logger, tenantId, requestId string) func() {
	redisLock := config.GetRedisLock()
	if redisLock == nil {
		logger.WithFields(logrus.Fields{
			"field":      "obtainTenantLock",
			"tenant_id":  tenantId,
			"request_id": requestId,
		}).Warn("redis lock not ready; proceeding without redis lock")
		return func() {}
	}

	lock, err := redisLock.Obtain(c.Request.Context(), fmt.Sprintf("lock:%s", tenantId), 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		logger.WithFields(logrus.Fields{
			"field":      "obtainTenantLock",
			"tenant_id":  tenantId,
			"request_id": requestId,
		}).Warn("could not obtain redis lock; proceeding without redis lock")
		return func() {}
	} else if err != nil {
		logger.WithFields(logrus.Fields{
			"field":      "obtainTenantLock",
			"tenant_id":  tenantId,
			"request_id": requestId,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return func() {}
	}

	return func() {
		if releaseErr := lock.Release(c.Request.Context()); releaseErr != nil {
			logger.WithFields(logrus.Fields{
				"field":      "obtainTenantLock",
				"tenant_id":  tenantId,
				"request_id": requestId,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}
}
