package taskqueue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/models"
)

// TypeCommandRetry re-attempts a device command whose dispatch failed.
// Edge-triggered rules fire once per rising edge, so without this queue a
// device that was offline at fire time would never receive its action until
// the condition re-transitioned.
const TypeCommandRetry = "command:retry"

// CommandRetryPayload is the task body for a retried dispatch.
type CommandRetryPayload struct {
	DeviceID int64             `json:"device_id"`
	Action   models.ActionType `json:"action"`
}

// Queue enqueues retry tasks. Satisfies scheduler.RetryQueue.
type Queue struct {
	client *asynq.Client
	logger *zap.SugaredLogger
}

func NewQueue(redisAddr string, logger *zap.SugaredLogger) *Queue {
	return &Queue{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		logger: logger,
	}
}

// EnqueueRetry schedules a bounded-retry re-dispatch for a device command.
// The first attempt waits a little: the common failure is an offline device,
// and retrying immediately would just fail again.
func (q *Queue) EnqueueRetry(deviceID int64, action models.ActionType) error {
	payload, err := json.Marshal(CommandRetryPayload{DeviceID: deviceID, Action: action})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeCommandRetry, payload)
	info, err := q.client.Enqueue(task,
		asynq.MaxRetry(5),
		asynq.ProcessIn(30*time.Second),
		asynq.Timeout(10*time.Second),
	)
	if err != nil {
		return err
	}
	q.logger.Infow("dispatch retry enqueued", "task", info.ID, "device", deviceID, "action", action)
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
