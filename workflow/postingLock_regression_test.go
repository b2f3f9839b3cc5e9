package workflow_test

import (
	"os"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/workflow"
)

// GET_LOCK is connection-scoped: acquire and release must land on one pinned
// connection, and the release must actually free the lock as seen from the
// rest of the pool.
func TestDepletionLockHeldAndReleasedOnPinnedConnection(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "barledger_test")

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()

	const locationId = "11111111-1111-1111-1111-111111111111"
	lockName := "depletion:" + locationId

	err := db.Connection(func(lockConn *gorm.DB) error {
		if err := workflow.AcquireDepletionLock(lockConn, locationId); err != nil {
			t.Fatalf("acquire: %v", err)
		}

		// Observed from any other pool connection the lock is busy.
		var free int
		if err := db.Raw("SELECT IS_FREE_LOCK(?)", lockName).Scan(&free).Error; err != nil {
			t.Fatalf("IS_FREE_LOCK while held: %v", err)
		}
		if free != 0 {
			t.Fatalf("lock must be held while the pinned connection owns it")
		}

		workflow.ReleaseDepletionLock(lockConn, locationId)
		return nil
	})
	if err != nil {
		t.Fatalf("pinned connection: %v", err)
	}

	var free int
	if err := db.Raw("SELECT IS_FREE_LOCK(?)", lockName).Scan(&free).Error; err != nil {
		t.Fatalf("IS_FREE_LOCK after release: %v", err)
	}
	if free != 1 {
		t.Fatalf("release on the pinned connection must free the lock")
	}
}
