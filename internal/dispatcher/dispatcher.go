package dispatcher

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/models"
	"github.com/tonytopp/shelly-home/internal/mqtt"
	"github.com/tonytopp/shelly-home/internal/registry"
)

// ErrDeviceOffline is returned when a command targets a device that has not
// been seen within the staleness window. An offline device cannot be trusted
// to have received anything, so nothing is published.
var ErrDeviceOffline = errors.New("device offline")

// Dispatcher turns a fired action into an outbound device command plus the
// optimistic registry update. At-most-once: success means the transport
// accepted the publish, not that the device confirmed it.
type Dispatcher struct {
	registry  *registry.Registry
	transport mqtt.Publisher
	logger    *zap.SugaredLogger
}

func NewDispatcher(reg *registry.Registry, transport mqtt.Publisher, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{registry: reg, transport: transport, logger: logger}
}

// Dispatch publishes the on/off command to the device's command sub-topic.
func (d *Dispatcher) Dispatch(deviceID int64, action models.ActionType) error {
	dev, ok := d.registry.Get(deviceID)
	if !ok {
		return fmt.Errorf("device %d: %w", deviceID, registry.ErrDeviceNotFound)
	}
	if dev.Status != models.StatusOnline {
		return fmt.Errorf("device %d: %w", deviceID, ErrDeviceOffline)
	}

	payload := "off"
	if action == models.ActionTurnOn {
		payload = "on"
	}
	topic := dev.MQTTTopic + "/command"
	if err := d.transport.Publish(topic, []byte(payload)); err != nil {
		return fmt.Errorf("publish %s to %s: %w", payload, topic, err)
	}

	if err := d.registry.ApplyCommandResult(deviceID, action == models.ActionTurnOn); err != nil {
		// Device vanished between the lookup and the update; the command is
		// already on the wire, so just log it.
		d.logger.Warnw("command sent but state not recorded", "device", deviceID, "error", err)
	}
	d.logger.Infow("command dispatched", "device", deviceID, "topic", topic, "payload", payload)
	return nil
}
