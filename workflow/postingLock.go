package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireDepletionLock serializes depletion runs per location across
// instances using MySQL advisory locks. Runs for different locations proceed
// in parallel.
// NOTE: GET_LOCK is connection-scoped. Call this inside db.Connection so
// acquire and release land on the same pinned connection; issuing them
// through the pool can release on a connection that never held the lock.
func AcquireDepletionLock(tx *gorm.DB, locationId string) error {
	lockName := fmt.Sprintf("depletion:%s", locationId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire depletion lock for location_id=%s", locationId)
	}
	return nil
}

func ReleaseDepletionLock(tx *gorm.DB, locationId string) {
	lockName := fmt.Sprintf("depletion:%s", locationId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
