package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tonytopp/shelly-home/internal/models"
)

// ErrBadPayload marks telemetry that could not be parsed. Bad messages are
// logged and dropped; they never abort the ingestion path.
var ErrBadPayload = errors.New("malformed telemetry payload")

type relayObject struct {
	IsOn *bool `json:"ison"`
}

// statusPayload covers every known device status shape. Device families
// disagree on field names, so all fields are optional and resolved in a fixed
// order below. Unknown fields are ignored by the decoder.
type statusPayload struct {
	RelayState *int         `json:"relay_state"`
	Relay0     *relayObject `json:"relay0"`
	IsOn       *bool        `json:"ison"`
	Power      *json.Number `json:"power"`
	Power0     *json.Number `json:"power0"`
}

// Normalize parses a raw status payload into a canonical observation.
// Relay state is resolved in order: relay_state (integer), relay0.ison
// (nested object), ison (flat). Power resolves power before power0. A payload
// carrying none of these yields an empty observation, which still counts as
// proof of life for the device.
func Normalize(raw []byte) (models.DeviceObservation, error) {
	var p statusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.DeviceObservation{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var obs models.DeviceObservation
	switch {
	case p.RelayState != nil:
		on := *p.RelayState == 1
		obs.IsOn = &on
	case p.Relay0 != nil && p.Relay0.IsOn != nil:
		on := *p.Relay0.IsOn
		obs.IsOn = &on
	case p.IsOn != nil:
		on := *p.IsOn
		obs.IsOn = &on
	}

	// json.Number keeps the upstream decimal text, so power survives storage
	// without a float round-trip.
	switch {
	case p.Power != nil:
		s := p.Power.String()
		obs.Power = &s
	case p.Power0 != nil:
		s := p.Power0.String()
		obs.Power = &s
	}

	return obs, nil
}
