package workflow

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/models"
)

const alertDedupWindow = 24 * time.Hour

// DispatchAlerts publishes evaluated alerts to the notification topic,
// suppressing any alert whose dedup key fired within the last 24h. Delivery
// mechanics (push, email) live entirely with the topic's consumers; the
// engine only emits.
func DispatchAlerts(ctx context.Context, logger *logrus.Logger, alerts []models.AlertResult) (published, suppressed int, err error) {
	topicName := strings.TrimSpace(os.Getenv("ALERT_TOPIC"))
	if topicName == "" {
		topicName = "inventory-alerts"
	}

	for i := range alerts {
		alert := &alerts[i]

		fresh, dedupErr := config.SetRedisValueIfAbsent(alert.DedupKey(), alert.EvaluatedAt.UTC().Format(time.RFC3339), alertDedupWindow)
		if dedupErr != nil {
			// Redis down degrades to at-least-once dispatch.
			config.LogError(logger, "workflow", "DispatchAlerts", "dedup check", map[string]interface{}{"rule": alert.Rule}, dedupErr)
			fresh = true
		}
		if !fresh {
			suppressed++
			continue
		}

		data, _ := json.Marshal(alert)
		if _, pubErr := config.PublishJSON(ctx, topicName, data); pubErr != nil {
			config.LogError(logger, "workflow", "DispatchAlerts", "publish alert", map[string]interface{}{"rule": alert.Rule}, pubErr)
			// Release the dedup key so the undelivered alert is retried on
			// the next evaluation instead of being suppressed for 24h.
			if dedupErr == nil {
				if rmErr := config.RemoveRedisKey(alert.DedupKey()); rmErr != nil {
					config.LogError(logger, "workflow", "DispatchAlerts", "release dedup key", map[string]interface{}{"rule": alert.Rule}, rmErr)
				}
			}
			err = pubErr
			continue
		}
		published++
	}

	logger.WithFields(logrus.Fields{
		"module":     "workflow",
		"published":  published,
		"suppressed": suppressed,
	}).Info("alerts dispatched")
	return published, suppressed, err
}
