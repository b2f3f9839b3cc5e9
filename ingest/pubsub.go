package ingest

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"

	"github.com/mmdatafocus/barledger_backend/config"
	"github.com/mmdatafocus/barledger_backend/utils"
)

// PublishImportRun queues a run for the push worker.
func PublishImportRun(ctx context.Context, runId uint, businessId, locationId string) error {
	topicName := strings.TrimSpace(os.Getenv("POS_IMPORT_TOPIC"))
	if topicName == "" {
		topicName = "pos-import"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if utils.EnvBoolDefault("POS_IMPORT_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, _ := json.Marshal(ImportPubSubPayload{
		RunId:      runId,
		BusinessId: businessId,
		LocationId: locationId,
	})
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler runs queued imports delivered by Pub/Sub push. A short
// best-effort Redis lock per run keeps redelivered messages from racing;
// correctness does not depend on it since RunImport short-circuits terminal
// runs and inserts dedup on the natural key.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !utils.EnvBoolDefault("ENABLE_POS_IMPORT_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload ImportPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 || payload.BusinessId == "" {
			c.Status(204)
			return
		}

		ctx := c.Request.Context()
		if locker := config.GetRedisLock(); locker != nil {
			lockKey := "import-run:" + strconv.FormatUint(uint64(payload.RunId), 10)
			lock, err := locker.Obtain(ctx, lockKey, 5*time.Minute, nil)
			if err == redislock.ErrNotObtained {
				c.Status(204)
				return
			}
			if err == nil {
				defer lock.Release(context.Background())
			}
		}

		if err := RunImport(ctx, payload); err != nil {
			logger := config.GetLogger()
			config.LogError(logger, "ingest", "PubSubPushHandler", "run import", map[string]interface{}{"runId": payload.RunId}, err)
		}
		c.Status(204)
	}
}
