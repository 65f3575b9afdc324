package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"price", `{"type":"price","operator":"lt","value":0.5}`},
		{"time", `{"type":"time","startTime":"22:00","endTime":"06:00"}`},
		{"weather", `{"type":"weather","condition":"rain"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var c Condition
			require.NoError(t, json.Unmarshal([]byte(tc.in), &c))

			out, err := json.Marshal(c)
			require.NoError(t, err)
			assert.JSONEq(t, tc.in, string(out))
		})
	}
}

func TestConditionUnmarshalSelectsVariant(t *testing.T) {
	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"type":"price","operator":"gt","value":1.2}`), &c))

	assert.Equal(t, ConditionPrice, c.Type)
	require.NotNil(t, c.Price)
	assert.Nil(t, c.Time)
	assert.Nil(t, c.Weather)
	assert.Equal(t, OpGreater, c.Price.Operator)
	assert.Equal(t, 1.2, c.Price.Value)
}

func TestConditionUnmarshalUnknownType(t *testing.T) {
	var c Condition
	err := json.Unmarshal([]byte(`{"type":"moon-phase"}`), &c)
	assert.Error(t, err)
}

func validRule() AutomationRule {
	return AutomationRule{
		Name:     "night heating",
		DeviceID: 7,
		IsActive: true,
		Condition: Condition{
			Type: ConditionTime,
			Time: &TimeCondition{StartTime: "22:00", EndTime: "06:00"},
		},
		Action: Action{Type: ActionTurnOn, DeviceID: 7},
	}
}

func TestRuleValidate(t *testing.T) {
	rule := validRule()
	assert.NoError(t, rule.Validate())

	noName := validRule()
	noName.Name = ""
	assert.Error(t, noName.Validate())

	noDevice := validRule()
	noDevice.DeviceID = 0
	noDevice.Action.DeviceID = 0
	assert.Error(t, noDevice.Validate())

	badAction := validRule()
	badAction.Action.Type = "toggle"
	assert.Error(t, badAction.Validate())

	mismatch := validRule()
	mismatch.Action.DeviceID = 8
	assert.Error(t, mismatch.Validate(), "action must target the rule's own device")

	badClock := validRule()
	badClock.Condition.Time.StartTime = "24:00"
	assert.Error(t, badClock.Validate())

	badOp := validRule()
	badOp.Condition = Condition{Type: ConditionPrice, Price: &PriceCondition{Operator: "lte", Value: 1}}
	assert.Error(t, badOp.Validate())

	badSky := validRule()
	badSky.Condition = Condition{Type: ConditionWeather, Weather: &WeatherCondition{Condition: "cloudy"}}
	assert.Error(t, badSky.Validate())
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("22:15")
	require.NoError(t, err)
	assert.Equal(t, Clock(22*60+15), c)

	c, err = ParseClock("00:00")
	require.NoError(t, err)
	assert.Equal(t, Clock(0), c)

	for _, bad := range []string{"24:00", "10:60", "-1:00", "noon", ""} {
		_, err := ParseClock(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestPricePointContains(t *testing.T) {
	start := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	p := PricePoint{TimeStart: start, TimeEnd: start.Add(time.Hour)}

	assert.True(t, p.Contains(start))
	assert.True(t, p.Contains(start.Add(59*time.Minute)))
	assert.False(t, p.Contains(start.Add(time.Hour)))
	assert.False(t, p.Contains(start.Add(-time.Second)))
}
