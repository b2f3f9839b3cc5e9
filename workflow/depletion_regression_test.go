package workflow_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/models"
	"github.com/mmdatafocus/barledger_backend/utils"
	"github.com/mmdatafocus/barledger_backend/workflow"
)

// NOTE: DB-backed regression coverage for the two invariants unit tests
// cannot reach: re-run idempotence against real rows, and hook-level ledger
// immutability. Requires docker.

func TestDepletionRerunIsIdempotentAndLedgerIsImmutable(t *testing.T) {
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
	models.MigrateTable()
	db := config.GetDB()

	biz := models.Business{Name: "Taproom Test", Timezone: "UTC"}
	if err := db.Create(&biz).Error; err != nil {
		t.Fatalf("create business: %v", err)
	}
	loc := models.Location{BusinessId: biz.ID.String(), Name: "Main Bar"}
	if err := db.Create(&loc).Error; err != nil {
		t.Fatalf("create location: %v", err)
	}

	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, biz.ID.String())
	ctx = utils.SetLocationIdInContext(ctx, loc.ID.String())
	scoped := db.WithContext(ctx)

	item := models.InventoryItem{
		BusinessId: biz.ID.String(),
		LocationId: loc.ID.String(),
		Type:       models.ItemTypePackagedBeer,
		Name:       "House IPA 473ml",
		BaseUOM:    models.UOMUnits,
	}
	if err := scoped.Create(&item).Error; err != nil {
		t.Fatalf("create item: %v", err)
	}

	soldAt := time.Date(2026, 3, 14, 20, 30, 0, 0, time.UTC)
	mapping := models.POSItemMapping{
		BusinessId:      biz.ID.String(),
		LocationId:      loc.ID.String(),
		SourceSystem:    models.SourceSystemToast,
		PosItemId:       "m-55",
		Mode:            models.MappingModePackagedUnit,
		InventoryItemId: &item.ID,
		Active:          utils.NewTrue(),
		EffectiveFromTs: soldAt.AddDate(0, -1, 0),
	}
	if err := scoped.Create(&mapping).Error; err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	line := models.SalesLine{
		BusinessId:       biz.ID.String(),
		LocationId:       loc.ID.String(),
		SourceSystem:     models.SourceSystemToast,
		SourceLocationId: "ext-1",
		BusinessDate:     soldAt.Truncate(24 * time.Hour),
		ReceiptId:        "1001",
		LineId:           "sel-1",
		SoldAt:           soldAt,
		PosItemId:        "m-55",
		PosItemName:      "House IPA",
		Quantity:         decimal.NewFromInt(2),
		IsVoided:         utils.NewFalse(),
		IsRefunded:       utils.NewFalse(),
	}
	if err := scoped.Create(&line).Error; err != nil {
		t.Fatalf("create sales line: %v", err)
	}

	logger := logrus.New()
	from := soldAt.Add(-time.Hour)
	to := soldAt.Add(time.Hour)

	stats, err := workflow.ProcessWindow(ctx, scoped, logger, loc.ID.String(), from, to)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if stats.Created != 1 || stats.Processed != 1 {
		t.Fatalf("first run stats: %+v", stats)
	}

	// Re-running the same window must change nothing.
	stats, err = workflow.ProcessWindow(ctx, scoped, logger, loc.ID.String(), from, to)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.Created != 0 || stats.Skipped != 1 {
		t.Fatalf("re-run must skip the processed line: %+v", stats)
	}

	var events []*models.ConsumptionEvent
	if err := scoped.Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 ledger row, got %d", len(events))
	}
	if !events[0].QuantityDelta.Equal(decimal.NewFromInt(-2)) {
		t.Fatalf("delta: %s", events[0].QuantityDelta)
	}

	// Direct mutation of a ledger row must fail closed at the hook.
	err = scoped.Model(events[0]).Update("quantity_delta", decimal.NewFromInt(-1)).Error
	if err == nil {
		t.Fatalf("ledger update must be rejected")
	}
	err = scoped.Delete(events[0]).Error
	if err == nil {
		t.Fatalf("ledger delete must be rejected")
	}

	// The correction workflow is the only legal path.
	reversalId, replacementId, err := workflow.CorrectEvent(ctx, scoped, logger, events[0].ID, decimal.NewFromInt(-1), models.UOMUnits, "staff keyed wrong qty")
	if err != nil {
		t.Fatalf("CorrectEvent: %v", err)
	}
	if err := scoped.Find(&events).Error; err != nil {
		t.Fatalf("reload events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("correction appends 2 rows, got %d total", len(events))
	}

	total := decimal.Zero
	for _, e := range events {
		total = total.Add(e.QuantityDelta)
		if e.ID == reversalId {
			if e.ReversalOfEventId == nil {
				t.Fatalf("reversal row must link the original")
			}
			if !e.QuantityDelta.Equal(decimal.NewFromInt(2)) {
				t.Fatalf("reversal delta: %s", e.QuantityDelta)
			}
		}
		if e.ID == replacementId && !e.QuantityDelta.Equal(decimal.NewFromInt(-1)) {
			t.Fatalf("replacement delta: %s", e.QuantityDelta)
		}
	}
	if !total.Equal(decimal.NewFromInt(-1)) {
		t.Fatalf("ledger must net to the corrected quantity, got %s", total)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("barledger-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=barledger_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
