package taskqueue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/dispatcher"
	"github.com/tonytopp/shelly-home/internal/models"
	"github.com/tonytopp/shelly-home/internal/registry"
)

// CommandDispatcher is what the retry worker needs from the dispatcher.
type CommandDispatcher interface {
	Dispatch(deviceID int64, action models.ActionType) error
}

// Worker processes retry tasks against Redis.
type Worker struct {
	srv      *asynq.Server
	dispatch CommandDispatcher
	logger   *zap.SugaredLogger
}

func NewWorker(redisAddr string, dispatch CommandDispatcher, logger *zap.SugaredLogger) *Worker {
	return &Worker{
		srv: asynq.NewServer(
			asynq.RedisClientOpt{Addr: redisAddr},
			asynq.Config{Concurrency: 5},
		),
		dispatch: dispatch,
		logger:   logger,
	}
}

// Start runs the worker loop in the background.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCommandRetry, w.handleCommandRetry)
	return w.srv.Start(mux)
}

func (w *Worker) Stop() {
	w.srv.Shutdown()
}

func (w *Worker) handleCommandRetry(ctx context.Context, t *asynq.Task) error {
	var payload CommandRetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Errorw("bad retry payload, dropping task", "error", err)
		return nil
	}

	err := w.dispatch.Dispatch(payload.DeviceID, payload.Action)
	switch {
	case err == nil:
		w.logger.Infow("retried dispatch succeeded", "device", payload.DeviceID, "action", payload.Action)
		return nil
	case errors.Is(err, registry.ErrDeviceNotFound):
		// Device was deleted; nothing left to actuate.
		w.logger.Infow("retry target gone, dropping task", "device", payload.DeviceID)
		return nil
	case errors.Is(err, dispatcher.ErrDeviceOffline):
		w.logger.Warnw("retry target still offline", "device", payload.DeviceID)
		return err
	default:
		return err
	}
}
