package models

import (
	"bitbucket.org/easybudget/billing_backend/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func MigrateTable() {
	db := config.GetDB()
	logger := config.GetLogger()

	err := db.AutoMigrate(
		&Tenant{},
		&Provider{},
		&Plan{},
		&PlanSubscription{},
		&Payment{},
		&MerchantOrder{},
		&InvoiceStatus{},
		&Invoice{},
		&NotificationRecord{},
		&WebhookEvent{},
	)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"field": "migration",
		}).Panic(err.Error())
	}

	if err := seedInvoiceStatuses(db); err != nil {
		logger.WithFields(logrus.Fields{
			"field": "migration",
		}).Panic(err.Error())
	}
}

// The invoice reconciler resolves slugs against this table; it must always be
// populated, including for fresh test databases.
func seedInvoiceStatuses(db *gorm.DB) error {
	statuses := []InvoiceStatus{
		{Slug: InvoiceStatusSlugPending, Name: "Pending"},
		{Slug: InvoiceStatusSlugPaid, Name: "Paid"},
		{Slug: InvoiceStatusSlugOverdue, Name: "Overdue"},
		{Slug: InvoiceStatusSlugCancelled, Name: "Cancelled"},
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&statuses).Error
}
