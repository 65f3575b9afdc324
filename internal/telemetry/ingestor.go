package telemetry

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/registry"
)

// Ingestor wires the telemetry bus into the device registry. Each message is
// handled in isolation: a bad payload or unknown topic drops that message only.
type Ingestor struct {
	client   mqtt.Client
	registry *registry.Registry
	logger   *zap.SugaredLogger
}

func NewIngestor(client mqtt.Client, reg *registry.Registry, logger *zap.SugaredLogger) *Ingestor {
	return &Ingestor{client: client, registry: reg, logger: logger}
}

// Start subscribes to the shared device namespace plus every registered
// device's own topic subtree.
func (in *Ingestor) Start(rootTopic string) error {
	if err := in.subscribe(rootTopic); err != nil {
		return err
	}
	for _, dev := range in.registry.Snapshot() {
		if err := in.SubscribeDevice(dev.MQTTTopic); err != nil {
			in.logger.Warnw("device topic subscribe failed", "topic", dev.MQTTTopic, "error", err)
		}
	}
	return nil
}

// SubscribeDevice starts listening on a device's topic subtree.
func (in *Ingestor) SubscribeDevice(topic string) error {
	return in.subscribe(topic + "/#")
}

// UnsubscribeDevice stops listening on a removed device's subtree.
func (in *Ingestor) UnsubscribeDevice(topic string) error {
	token := in.client.Unsubscribe(topic + "/#")
	token.Wait()
	return token.Error()
}

func (in *Ingestor) subscribe(filter string) error {
	token := in.client.Subscribe(filter, 1, in.HandleMessage)
	token.Wait()
	return token.Error()
}

// HandleMessage is the paho callback for inbound device status messages.
func (in *Ingestor) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()

	deviceID, ok := in.registry.ResolveTopic(topic)
	if !ok {
		// Telemetry is fire-and-forget: no device, no retry.
		in.logger.Debugw("telemetry for unknown topic dropped", "topic", topic)
		return
	}

	obs, err := Normalize(msg.Payload())
	if err != nil {
		in.logger.Warnw("telemetry dropped", "topic", topic, "error", err)
		return
	}

	in.registry.ApplyObservation(deviceID, obs)
}
