package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireTenantReconcileLock serializes reconciliation per tenant across
// instances using MySQL advisory locks. Two settlements for the same provider
// arriving close together must not both observe "no active subscription".
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that runs the event transaction.
func AcquireTenantReconcileLock(tx *gorm.DB, tenantId string) error {
	lockName := fmt.Sprintf("subrecon:%s", tenantId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire reconcile lock for tenant_id=%s", tenantId)
	}
	return nil
}

func ReleaseTenantReconcileLock(tx *gorm.DB, tenantId string) {
	lockName := fmt.Sprintf("subrecon:%s", tenantId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
