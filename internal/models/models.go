package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeviceStatus is derived from telemetry, never set by API clients.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
)

// Known device kinds. Anything else is rejected at write time.
var DeviceTypes = []string{"shelly1", "shelly1pm", "shelly2", "shellydimmer", "shellyplug"}

// Device represents a registered smart plug or relay.
type Device struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	IPAddress string       `json:"ipAddress"`
	MQTTTopic string       `json:"mqttTopic"`
	Status    DeviceStatus `json:"status"`
	Power     string       `json:"power"`
	IsOn      bool         `json:"isOn"`
	LastSeen  *time.Time   `json:"lastSeen,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// DeviceObservation is a normalized, partial view of one telemetry message.
// Nil fields were not present in the payload and must not overwrite state.
type DeviceObservation struct {
	IsOn  *bool
	Power *string
}

// SkyState enumerates the weather conditions a rule can match against.
type SkyState string

const (
	SkyClearSky        SkyState = "clear-sky"
	SkyFewClouds       SkyState = "few-clouds"
	SkyScatteredClouds SkyState = "scattered-clouds"
	SkyBrokenClouds    SkyState = "broken-clouds"
	SkyShowerRain      SkyState = "shower-rain"
	SkyRain            SkyState = "rain"
	SkyThunderstorm    SkyState = "thunderstorm"
	SkySnow            SkyState = "snow"
	SkyMist            SkyState = "mist"
)

var skyStates = map[SkyState]bool{
	SkyClearSky: true, SkyFewClouds: true, SkyScatteredClouds: true,
	SkyBrokenClouds: true, SkyShowerRain: true, SkyRain: true,
	SkyThunderstorm: true, SkySnow: true, SkyMist: true,
}

func (s SkyState) Valid() bool { return skyStates[s] }

// PricePoint is one hour of spot price data, valid over [TimeStart, TimeEnd).
type PricePoint struct {
	SEKPerKWh float64   `json:"SEK_per_kWh"`
	EURPerKWh float64   `json:"EUR_per_kWh"`
	EXR       float64   `json:"EXR"`
	TimeStart time.Time `json:"time_start"`
	TimeEnd   time.Time `json:"time_end"`
}

// Contains reports whether t falls inside the point's half-open interval.
func (p PricePoint) Contains(t time.Time) bool {
	return !t.Before(p.TimeStart) && t.Before(p.TimeEnd)
}

// DayForecast is a day-bucketed summary of the upstream forecast.
type DayForecast struct {
	Date          string   `json:"day"`
	TempMin       float64  `json:"tempMin"`
	TempMax       float64  `json:"tempMax"`
	Temperature   float64  `json:"temperature"`
	Precipitation float64  `json:"precipitation"`
	WindSpeed     float64  `json:"windSpeed"`
	Humidity      float64  `json:"humidity"`
	Condition     SkyState `json:"condition"`
	Description   string   `json:"description"`
}

// WeatherSnapshot is the current-conditions view the evaluator reasons over.
type WeatherSnapshot struct {
	Location           string        `json:"location"`
	CurrentTemperature float64       `json:"currentTemperature"`
	Condition          SkyState      `json:"weatherCondition"`
	Humidity           float64       `json:"humidity"`
	Wind               float64       `json:"wind"`
	Precipitation      float64       `json:"precipitation"`
	Forecast           []DayForecast `json:"forecast"`
}

// Operator is a price comparison operator.
type Operator string

const (
	OpLess    Operator = "lt"
	OpGreater Operator = "gt"
	OpEqual   Operator = "eq"
)

func (o Operator) Valid() bool {
	return o == OpLess || o == OpGreater || o == OpEqual
}

type ConditionType string

const (
	ConditionPrice   ConditionType = "price"
	ConditionTime    ConditionType = "time"
	ConditionWeather ConditionType = "weather"
)

// PriceCondition matches when the current hour's spot price compares true
// against Value.
type PriceCondition struct {
	Operator Operator `json:"operator"`
	Value    float64  `json:"value"`
}

// TimeCondition matches inside the local [StartTime, EndTime) window.
// A window whose end is before its start spans midnight.
type TimeCondition struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// WeatherCondition matches on exact sky-state equality.
type WeatherCondition struct {
	Condition SkyState `json:"condition"`
}

// Condition is a tagged union: exactly one variant is non-nil, selected by Type.
type Condition struct {
	Type    ConditionType
	Price   *PriceCondition
	Time    *TimeCondition
	Weather *WeatherCondition
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type ConditionType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	c.Type = probe.Type
	c.Price, c.Time, c.Weather = nil, nil, nil
	switch probe.Type {
	case ConditionPrice:
		c.Price = &PriceCondition{}
		return json.Unmarshal(data, c.Price)
	case ConditionTime:
		c.Time = &TimeCondition{}
		return json.Unmarshal(data, c.Time)
	case ConditionWeather:
		c.Weather = &WeatherCondition{}
		return json.Unmarshal(data, c.Weather)
	}
	return fmt.Errorf("unknown condition type %q", probe.Type)
}

func (c Condition) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case ConditionPrice:
		return json.Marshal(struct {
			Type ConditionType `json:"type"`
			*PriceCondition
		}{c.Type, c.Price})
	case ConditionTime:
		return json.Marshal(struct {
			Type ConditionType `json:"type"`
			*TimeCondition
		}{c.Type, c.Time})
	case ConditionWeather:
		return json.Marshal(struct {
			Type ConditionType `json:"type"`
			*WeatherCondition
		}{c.Type, c.Weather})
	}
	return nil, fmt.Errorf("unknown condition type %q", c.Type)
}

type ActionType string

const (
	ActionTurnOn  ActionType = "turnOn"
	ActionTurnOff ActionType = "turnOff"
)

// Action is the single device actuation a rule performs when it fires.
type Action struct {
	Type     ActionType `json:"type"`
	DeviceID int64      `json:"deviceId"`
}

// AutomationRule is a declarative condition/action pair acting on one device.
type AutomationRule struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	DeviceID    int64     `json:"deviceId"`
	Condition   Condition `json:"condition"`
	Action      Action    `json:"action"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Validate rejects malformed rules before they reach persistence.
func (r *AutomationRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.DeviceID <= 0 {
		return fmt.Errorf("rule deviceId is required")
	}
	if r.Action.Type != ActionTurnOn && r.Action.Type != ActionTurnOff {
		return fmt.Errorf("unknown action type %q", r.Action.Type)
	}
	// Two independent device identifiers invite divergence; force agreement.
	if r.Action.DeviceID != r.DeviceID {
		return fmt.Errorf("action deviceId %d does not match rule deviceId %d", r.Action.DeviceID, r.DeviceID)
	}
	switch r.Condition.Type {
	case ConditionPrice:
		if !r.Condition.Price.Operator.Valid() {
			return fmt.Errorf("unknown price operator %q", r.Condition.Price.Operator)
		}
	case ConditionTime:
		if _, err := ParseClock(r.Condition.Time.StartTime); err != nil {
			return fmt.Errorf("invalid startTime: %w", err)
		}
		if _, err := ParseClock(r.Condition.Time.EndTime); err != nil {
			return fmt.Errorf("invalid endTime: %w", err)
		}
	case ConditionWeather:
		if !r.Condition.Weather.Condition.Valid() {
			return fmt.Errorf("unknown weather condition %q", r.Condition.Weather.Condition)
		}
	default:
		return fmt.Errorf("unknown condition type %q", r.Condition.Type)
	}
	return nil
}

// Clock is a local time of day in minutes since midnight.
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("failed to parse time string %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return Clock(hour*60 + minute), nil
}

// ClockOf extracts the local time of day from t.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}
