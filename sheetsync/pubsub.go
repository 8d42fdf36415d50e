package sheetsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/realcrm/realty_backend/config"
	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/utils"
)

// SyncPubSubPayload is the message body for a queued run handoff.
type SyncPubSubPayload struct {
	RunId       uint   `json:"run_id"`
	TriggeredBy string `json:"triggered_by"`
	BusinessKey string `json:"business_key,omitempty"`
}

// PubSubPushEnvelope is the wrapper Google wraps push deliveries in.
type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PublishSyncRun hands a queued run row to the push worker.
func PublishSyncRun(ctx context.Context, runId uint, opts RunOptions) error {
	topicName := strings.TrimSpace(os.Getenv("SHEET_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "sheet-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("SHEET_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{
		RunId:       runId,
		TriggeredBy: opts.TriggeredBy,
		BusinessKey: opts.BusinessKey,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler executes queued runs delivered over a push
// subscription. Always 204: pubsub retries on anything else, and a broken
// payload will never get better.
func PubSubPushHandler(scheduler *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_SYNC_PUBSUB_PUSH_ENDPOINT", true) {
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

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 {
			c.Status(204)
			return
		}

		_ = scheduler.ExecuteQueuedRun(c.Request.Context(), payload.RunId)
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

// ExecuteQueuedRun runs an already-created queued run under the same
// overlap guards as a fresh trigger. A run in any terminal state is a no-op
// so redelivered messages are harmless.
func (s *Scheduler) ExecuteQueuedRun(ctx context.Context, runId uint) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer s.running.Store(false)

	lock, err := config.GetRedisLock().Obtain(ctx, syncLockKey, syncLockTTL, nil)
	if err != nil {
		if err == redislock.ErrNotObtained {
			return ErrRunInProgress
		}
		return utils.WrapError(utils.ErrorKindTransientIO, err)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			config.LogError(s.logger, "sheetsync", "ExecuteQueuedRun", "could not release sync lock", nil, err)
		}
	}()

	return s.orchestrator.ExecuteQueued(ctx, runId)
}

// ExecuteQueued loads a queued run row and drives the pipeline for it.
func (o *Orchestrator) ExecuteQueued(ctx context.Context, runId uint) error {
	var run models.SheetSyncRun
	if err := o.db.WithContext(ctx).Where("id = ?", runId).Take(&run).Error; err != nil {
		return utils.WrapError(utils.ErrorKindTransientIO, err)
	}
	if run.Status != models.SyncRunStatusQueued {
		return nil
	}
	return o.Execute(ctx, &run, RunOptions{
		TriggeredBy: run.TriggeredBy,
		BusinessKey: run.BusinessKey,
	})
}
