package models

import (
	"strings"
)

// Vendor status vocabularies evolve outside our release cycle, so every
// mapper below is total: unrecognized strings fall back to a conservative,
// non-settling default and report ok=false so the caller can log the gap.
// These mappers are the only place vendor strings are parsed.

type VendorPaymentStatus string

const (
	VendorPaymentStatusApproved    VendorPaymentStatus = "approved"
	VendorPaymentStatusPending     VendorPaymentStatus = "pending"
	VendorPaymentStatusAuthorized  VendorPaymentStatus = "authorized"
	VendorPaymentStatusInProcess   VendorPaymentStatus = "in_process"
	VendorPaymentStatusInMediation VendorPaymentStatus = "in_mediation"
	VendorPaymentStatusRejected    VendorPaymentStatus = "rejected"
	VendorPaymentStatusCancelled   VendorPaymentStatus = "cancelled"
	VendorPaymentStatusRefunded    VendorPaymentStatus = "refunded"
	VendorPaymentStatusChargedBack VendorPaymentStatus = "charged_back"
	VendorPaymentStatusRecovered   VendorPaymentStatus = "recovered"
)

var allVendorPaymentStatuses = []VendorPaymentStatus{
	VendorPaymentStatusApproved,
	VendorPaymentStatusPending,
	VendorPaymentStatusAuthorized,
	VendorPaymentStatusInProcess,
	VendorPaymentStatusInMediation,
	VendorPaymentStatusRejected,
	VendorPaymentStatusCancelled,
	VendorPaymentStatusRefunded,
	VendorPaymentStatusChargedBack,
	VendorPaymentStatusRecovered,
}

func (e VendorPaymentStatus) IsValid() bool {
	for _, s := range allVendorPaymentStatuses {
		if e == s {
			return true
		}
	}
	return false
}

func (e VendorPaymentStatus) String() string { return string(e) }

// MapVendorPaymentStatus normalizes a vendor payment status string.
// Unknown values map to pending (never a settling value).
func MapVendorPaymentStatus(raw string) (VendorPaymentStatus, bool) {
	s := VendorPaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s.IsValid() {
		return s, true
	}
	return VendorPaymentStatusPending, false
}

type SubscriptionStatus string

const (
	SubscriptionStatusPending  SubscriptionStatus = "pending"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

func (e SubscriptionStatus) IsValid() bool {
	switch e {
	case SubscriptionStatusPending, SubscriptionStatusActive, SubscriptionStatusCanceled, SubscriptionStatusExpired:
		return true
	}
	return false
}

func (e SubscriptionStatus) String() string { return string(e) }

// SubscriptionStatusForPayment collapses the payment vocabulary into the
// 4-state subscription machine.
func SubscriptionStatusForPayment(s VendorPaymentStatus) SubscriptionStatus {
	switch s {
	case VendorPaymentStatusApproved, VendorPaymentStatusRecovered:
		return SubscriptionStatusActive
	case VendorPaymentStatusPending, VendorPaymentStatusAuthorized,
		VendorPaymentStatusInProcess, VendorPaymentStatusInMediation:
		return SubscriptionStatusPending
	case VendorPaymentStatusRejected, VendorPaymentStatusCancelled,
		VendorPaymentStatusRefunded, VendorPaymentStatusChargedBack:
		return SubscriptionStatusCanceled
	default:
		return SubscriptionStatusPending
	}
}

// InvoiceStatusSlug identifies a row of the invoice_statuses lookup table.
type InvoiceStatusSlug string

const (
	InvoiceStatusSlugPaid      InvoiceStatusSlug = "paid"
	InvoiceStatusSlugPending   InvoiceStatusSlug = "pending"
	InvoiceStatusSlugCancelled InvoiceStatusSlug = "cancelled"

	// Overdue is never produced by the mapper; the invoice reconciler derives
	// it from a pending-mapped payment plus a past due date.
	InvoiceStatusSlugOverdue InvoiceStatusSlug = "overdue"
)

func (e InvoiceStatusSlug) IsValid() bool {
	switch e {
	case InvoiceStatusSlugPaid, InvoiceStatusSlugPending, InvoiceStatusSlugCancelled, InvoiceStatusSlugOverdue:
		return true
	}
	return false
}

func (e InvoiceStatusSlug) String() string { return string(e) }

// InvoiceStatusForPayment maps a payment status to the invoice status slug.
func InvoiceStatusForPayment(s VendorPaymentStatus) InvoiceStatusSlug {
	switch s {
	case VendorPaymentStatusApproved, VendorPaymentStatusRecovered:
		return InvoiceStatusSlugPaid
	case VendorPaymentStatusPending, VendorPaymentStatusAuthorized,
		VendorPaymentStatusInProcess, VendorPaymentStatusInMediation:
		return InvoiceStatusSlugPending
	case VendorPaymentStatusRejected, VendorPaymentStatusCancelled,
		VendorPaymentStatusRefunded, VendorPaymentStatusChargedBack:
		return InvoiceStatusSlugCancelled
	default:
		return InvoiceStatusSlugPending
	}
}

type MerchantOrderStatus string

const (
	MerchantOrderStatusOpened  MerchantOrderStatus = "opened"
	MerchantOrderStatusClosed  MerchantOrderStatus = "closed"
	MerchantOrderStatusExpired MerchantOrderStatus = "expired"
)

func (e MerchantOrderStatus) IsValid() bool {
	switch e {
	case MerchantOrderStatusOpened, MerchantOrderStatusClosed, MerchantOrderStatusExpired:
		return true
	}
	return false
}

func (e MerchantOrderStatus) String() string { return string(e) }

// MapMerchantOrderStatus normalizes the vendor order status.
// Unknown values map to opened.
func MapMerchantOrderStatus(raw string) (MerchantOrderStatus, bool) {
	s := MerchantOrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s.IsValid() {
		return s, true
	}
	return MerchantOrderStatusOpened, false
}

type MerchantOrderPaymentStatus string

const (
	MerchantOrderPaymentStatusPaymentRequired    MerchantOrderPaymentStatus = "payment_required"
	MerchantOrderPaymentStatusPaymentInProcess   MerchantOrderPaymentStatus = "payment_in_process"
	MerchantOrderPaymentStatusReverted           MerchantOrderPaymentStatus = "reverted"
	MerchantOrderPaymentStatusPaid               MerchantOrderPaymentStatus = "paid"
	MerchantOrderPaymentStatusPartiallyReverted  MerchantOrderPaymentStatus = "partially_reverted"
	MerchantOrderPaymentStatusPartiallyPaid      MerchantOrderPaymentStatus = "partially_paid"
	MerchantOrderPaymentStatusPartiallyInProcess MerchantOrderPaymentStatus = "partially_in_process"
	MerchantOrderPaymentStatusUndefined          MerchantOrderPaymentStatus = "undefined"
	MerchantOrderPaymentStatusExpired            MerchantOrderPaymentStatus = "expired"
)

var allMerchantOrderPaymentStatuses = []MerchantOrderPaymentStatus{
	MerchantOrderPaymentStatusPaymentRequired,
	MerchantOrderPaymentStatusPaymentInProcess,
	MerchantOrderPaymentStatusReverted,
	MerchantOrderPaymentStatusPaid,
	MerchantOrderPaymentStatusPartiallyReverted,
	MerchantOrderPaymentStatusPartiallyPaid,
	MerchantOrderPaymentStatusPartiallyInProcess,
	MerchantOrderPaymentStatusUndefined,
	MerchantOrderPaymentStatusExpired,
}

func (e MerchantOrderPaymentStatus) IsValid() bool {
	for _, s := range allMerchantOrderPaymentStatuses {
		if e == s {
			return true
		}
	}
	return false
}

func (e MerchantOrderPaymentStatus) String() string { return string(e) }

// MapMerchantOrderPaymentStatus normalizes the vendor order_status field.
// Unknown values map to undefined.
func MapMerchantOrderPaymentStatus(raw string) (MerchantOrderPaymentStatus, bool) {
	s := MerchantOrderPaymentStatus(strings.ToLower(strings.TrimSpace(raw)))
	if s.IsValid() {
		return s, true
	}
	return MerchantOrderPaymentStatusUndefined, false
}

/* notification outbox */

type NotificationPublishStatus string

const (
	NotificationPublishStatusPending    NotificationPublishStatus = "PENDING"
	NotificationPublishStatusProcessing NotificationPublishStatus = "PROCESSING"
	NotificationPublishStatusSent       NotificationPublishStatus = "SENT"
	NotificationPublishStatusFailed     NotificationPublishStatus = "FAILED"
	NotificationPublishStatusDead       NotificationPublishStatus = "DEAD"
)

type NotificationReferenceType string

const (
	NotificationReferenceTypeSubscription  NotificationReferenceType = "plan_subscription"
	NotificationReferenceTypeInvoice       NotificationReferenceType = "invoice"
	NotificationReferenceTypeMerchantOrder NotificationReferenceType = "merchant_order"
	NotificationReferenceTypePayment       NotificationReferenceType = "payment"
)

const (
	NotificationEventSubscriptionRequested = "subscription.requested"
	NotificationEventSubscriptionActivated = "subscription.activated"
	NotificationEventSubscriptionCanceled  = "subscription.canceled"
	NotificationEventSubscriptionExpired   = "subscription.expired"
	NotificationEventInvoiceStatusChanged  = "invoice.status_changed"
	NotificationEventMerchantOrderUpdated  = "merchant_order.updated"
)
