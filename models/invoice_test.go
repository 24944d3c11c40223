package models_test

import (
	"testing"
	"time"

	"bitbucket.org/easybudget/billing_backend/models"
)

func TestEffectiveStatusSlug(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -10)
	future := now.AddDate(0, 0, 10)

	cases := []struct {
		name    string
		mapped  models.InvoiceStatusSlug
		dueDate time.Time
		want    models.InvoiceStatusSlug
	}{
		{"pending past due becomes overdue", models.InvoiceStatusSlugPending, past, models.InvoiceStatusSlugOverdue},
		{"pending before due stays pending", models.InvoiceStatusSlugPending, future, models.InvoiceStatusSlugPending},
		{"paid past due stays paid", models.InvoiceStatusSlugPaid, past, models.InvoiceStatusSlugPaid},
		{"cancelled past due stays cancelled", models.InvoiceStatusSlugCancelled, past, models.InvoiceStatusSlugCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := models.EffectiveStatusSlug(tc.mapped, tc.dueDate, now); got != tc.want {
				t.Fatalf("EffectiveStatusSlug(%q, due=%s) = %q, want %q", tc.mapped, tc.dueDate, got, tc.want)
			}
		})
	}
}

func TestInvoiceMatchesPaymentObservation(t *testing.T) {
	pid := "pay-123"
	inv := models.Invoice{
		InvoiceStatusId: 1,
		PaymentId:       &pid,
		PaymentMethod:   "credit_card",
	}

	if !inv.MatchesPaymentObservation(1, "pay-123", "credit_card") {
		t.Error("identical observation should match")
	}
	if inv.MatchesPaymentObservation(2, "pay-123", "credit_card") {
		t.Error("different status id should not match")
	}
	if inv.MatchesPaymentObservation(1, "pay-999", "credit_card") {
		t.Error("different payment id should not match")
	}
	if inv.MatchesPaymentObservation(1, "pay-123", "pix") {
		t.Error("different payment method should not match")
	}

	var fresh models.Invoice
	fresh.InvoiceStatusId = 1
	if fresh.MatchesPaymentObservation(1, "pay-123", "") {
		t.Error("invoice with no applied payment should never match")
	}
}

func TestSubscriptionPeriodDates(t *testing.T) {
	from := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)

	if got, want := models.SubscriptionEndDate(from), time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("SubscriptionEndDate = %s, want %s", got, want)
	}
	if got, want := models.NextPaymentDate(from), time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("NextPaymentDate = %s, want %s", got, want)
	}

	// End date always trails next payment by the 5-day grace window.
	end := models.SubscriptionEndDate(from)
	next := models.NextPaymentDate(from)
	if !end.After(next) {
		t.Errorf("end date %s should be after next payment date %s", end, next)
	}
}
