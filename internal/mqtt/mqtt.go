package mqtt

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 2 * time.Second

// Publisher is the outbound transport capability handed to components that
// send device commands. Keeps the paho client out of their constructors.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// NewMQTTClient connects to the broker, retrying with exponential backoff.
func NewMQTTClient(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(true)

	client := mqtt.NewClient(opts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	err := backoff.Retry(func() error {
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			return token.Error()
		}
		return nil
	}, bo)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Transport adapts a paho client to the Publisher interface. Publishes are
// accepted once the transport takes them; device delivery is never awaited.
type Transport struct {
	client mqtt.Client
}

func NewTransport(client mqtt.Client) *Transport {
	return &Transport{client: client}
}

func (t *Transport) Publish(topic string, payload []byte) error {
	token := t.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("mqtt publish timed out")
	}
	return token.Error()
}
