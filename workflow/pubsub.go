package workflow

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/utils"
)

// DepletionRunPayload schedules a depletion window for one location.
type DepletionRunPayload struct {
	BusinessId string    `json:"businessId"`
	LocationId string    `json:"locationId"`
	FromTs     time.Time `json:"fromTs"`
	ToTs       time.Time `json:"toTs"`
}

type pushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
	} `json:"message"`
}

// PublishDepletionRun queues a window run; the push endpoint executes it.
func PublishDepletionRun(ctx context.Context, payload DepletionRunPayload) error {
	topicName := strings.TrimSpace(os.Getenv("DEPLETION_TOPIC"))
	if topicName == "" {
		topicName = "depletion-run"
	}
	data, _ := json.Marshal(payload)
	_, err := config.PublishJSON(ctx, topicName, data)
	return err
}

// DepletionPushHandler executes queued depletion runs. Redelivery is safe:
// ProcessWindow is idempotent and same-location runs serialize on the
// advisory lock.
func DepletionPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.EnvBoolDefault("ENABLE_DEPLETION_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}
		var envelope pushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}
		var payload DepletionRunPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.BusinessId == "" || payload.LocationId == "" || payload.ToTs.IsZero() {
			c.Status(204)
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), payload.BusinessId)
		ctx = utils.SetLocationIdInContext(ctx, payload.LocationId)
		db := config.GetDB().WithContext(ctx)
		logger := config.GetLogger()

		if _, err := ProcessWindow(ctx, db, logger, payload.LocationId, payload.FromTs, payload.ToTs); err != nil {
			config.LogError(logger, "workflow", "DepletionPushHandler", "process window", map[string]interface{}{"locationId": payload.LocationId}, err)
		}
		c.Status(204)
	}
}

// AlertSweepPushHandler evaluates and dispatches alerts for one business,
// typically on a scheduler topic.
func AlertSweepPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.EnvBoolDefault("ENABLE_ALERT_SWEEP_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}
		var envelope pushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}
		var payload struct {
			BusinessId string `json:"businessId"`
		}
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil || payload.BusinessId == "" {
			c.Status(204)
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), payload.BusinessId)
		db := config.GetDB().WithContext(ctx)
		logger := config.GetLogger()

		alerts, err := EvaluateAlerts(ctx, db, payload.BusinessId)
		if err != nil {
			config.LogError(logger, "workflow", "AlertSweepPushHandler", "evaluate", map[string]interface{}{"businessId": payload.BusinessId}, err)
			c.Status(204)
			return
		}
		_, _, _ = DispatchAlerts(ctx, logger, alerts)
		c.Status(204)
	}
}
