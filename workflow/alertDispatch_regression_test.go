package workflow_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/models"
	"github.com/mmdatafocus/barledger_backend/workflow"
)

// An alert whose publish fails must not burn its 24h dedup window: the key is
// released so the next evaluation retries delivery.
func TestDispatchAlertsReleasesDedupKeyOnFailedPublish(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	t.Setenv("REDIS_ADDRESS", "127.0.0.1:"+redisPort)
	config.ConnectRedisWithRetry()

	// No project configured: every publish fails fast.
	t.Setenv("PUBSUB_PROJECT_ID", "")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("GCP_PROJECT", "")

	alert := models.AlertResult{
		Rule:        models.AlertRuleLowStock,
		LocationId:  "loc-1",
		Message:     "House IPA at 0.0 units, at or below 5.0",
		EvaluatedAt: time.Now(),
	}

	logger := logrus.New()
	ctx := context.Background()

	published, suppressed, err := workflow.DispatchAlerts(ctx, logger, []models.AlertResult{alert})
	if err == nil {
		t.Fatalf("publish must fail without a pubsub project")
	}
	if published != 0 || suppressed != 0 {
		t.Fatalf("nothing delivered, nothing suppressed: published=%d suppressed=%d", published, suppressed)
	}

	if _, found, err := config.GetRedisValue(alert.DedupKey()); err != nil {
		t.Fatalf("read dedup key: %v", err)
	} else if found {
		t.Fatalf("failed publish must release the dedup key")
	}

	// The retry is not suppressed by the failed first attempt.
	_, suppressed, err = workflow.DispatchAlerts(ctx, logger, []models.AlertResult{alert})
	if err == nil {
		t.Fatalf("publish must still fail")
	}
	if suppressed != 0 {
		t.Fatalf("undelivered alert must not be suppressed on retry, suppressed=%d", suppressed)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("barledger-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		out, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil && strings.Contains(out, "PONG") {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}
