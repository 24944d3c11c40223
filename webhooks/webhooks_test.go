package webhooks

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/easybudget/billing_backend/models"
	"bitbucket.org/easybudget/billing_backend/utils"
	"github.com/gin-gonic/gin"
)

func TestPaymentProcessorHandlerRejectsMissingRequestId(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhooks/payment-processor", PaymentProcessorHandler())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment-processor", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a delivery without X-Request-Id", w.Code)
	}
}

func TestIsValidationError(t *testing.T) {
	// Missing payment_id: the payload stays invalid on every redelivery, so
	// it must classify as malformed (400), never as a transient 500.
	err := utils.ValidateStruct(&models.PaymentEvent{VendorStatus: "approved"})
	if err == nil {
		t.Fatal("payment event without payment_id should fail validation")
	}
	if !isValidationError(err) {
		t.Errorf("validation failure not classified as malformed: %v", err)
	}

	if isValidationError(errors.New("dial tcp: connection refused")) {
		t.Error("transient error misclassified as malformed")
	}
	if isValidationError(utils.ErrorRecordNotFound) {
		t.Error("recoverable not-found misclassified as malformed")
	}
	if isValidationError(nil) {
		t.Error("nil error misclassified as malformed")
	}
}
