package models_test

import (
	"testing"

	"bitbucket.org/easybudget/billing_backend/models"
	"github.com/shopspring/decimal"
)

func TestMerchantOrderHasSignificantChanges(t *testing.T) {
	stored := models.MerchantOrder{
		Status:      models.MerchantOrderStatusOpened,
		OrderStatus: models.MerchantOrderPaymentStatusPaymentInProcess,
		TotalAmount: decimal.NewFromInt(1990),
		PaidAmount:  decimal.Zero,
	}

	if stored.HasSignificantChanges(models.MerchantOrderStatusOpened, models.MerchantOrderPaymentStatusPaymentInProcess, decimal.NewFromInt(1990), decimal.Zero) {
		t.Error("identical observation should not count as a change")
	}
	// Same numeric value at a different decimal scale is still a retry.
	if stored.HasSignificantChanges(models.MerchantOrderStatusOpened, models.MerchantOrderPaymentStatusPaymentInProcess, decimal.RequireFromString("1990.00"), decimal.Zero) {
		t.Error("equal amounts at different scales should not count as a change")
	}

	if !stored.HasSignificantChanges(models.MerchantOrderStatusClosed, models.MerchantOrderPaymentStatusPaymentInProcess, decimal.NewFromInt(1990), decimal.Zero) {
		t.Error("status change should count")
	}
	if !stored.HasSignificantChanges(models.MerchantOrderStatusOpened, models.MerchantOrderPaymentStatusPaid, decimal.NewFromInt(1990), decimal.Zero) {
		t.Error("order status change should count")
	}
	if !stored.HasSignificantChanges(models.MerchantOrderStatusOpened, models.MerchantOrderPaymentStatusPaymentInProcess, decimal.NewFromInt(1990), decimal.NewFromInt(1990)) {
		t.Error("paid amount change should count")
	}
}

func TestPaymentSameObservation(t *testing.T) {
	stored := models.Payment{
		Status:            models.VendorPaymentStatusPending,
		PaymentMethod:     "credit_card",
		TransactionAmount: decimal.NewFromInt(1990),
	}

	if !stored.SameObservation(models.VendorPaymentStatusPending, "credit_card", decimal.RequireFromString("1990.00")) {
		t.Error("identical observation should match")
	}
	if stored.SameObservation(models.VendorPaymentStatusApproved, "credit_card", decimal.NewFromInt(1990)) {
		t.Error("status change should not match")
	}
	if stored.SameObservation(models.VendorPaymentStatusPending, "pix", decimal.NewFromInt(1990)) {
		t.Error("method change should not match")
	}
}

func TestPaymentIsTerminalSuccess(t *testing.T) {
	for _, s := range []models.VendorPaymentStatus{models.VendorPaymentStatusApproved, models.VendorPaymentStatusRecovered} {
		p := models.Payment{Status: s}
		if !p.IsTerminalSuccess() {
			t.Errorf("status %q should be terminal success", s)
		}
	}
	for _, s := range []models.VendorPaymentStatus{models.VendorPaymentStatusPending, models.VendorPaymentStatusCancelled, models.VendorPaymentStatusRefunded} {
		p := models.Payment{Status: s}
		if p.IsTerminalSuccess() {
			t.Errorf("status %q should not be terminal success", s)
		}
	}
}
