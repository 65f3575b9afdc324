package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRelayShapes(t *testing.T) {
	// Three device families, three payload shapes, one canonical result.
	payloads := map[string]string{
		"relay_state int": `{"relay_state": 1}`,
		"relay0 nested":   `{"relay0": {"ison": true}}`,
		"ison flat":       `{"ison": true}`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			obs, err := Normalize([]byte(payload))
			require.NoError(t, err)
			require.NotNil(t, obs.IsOn)
			assert.True(t, *obs.IsOn)
			assert.Nil(t, obs.Power)
		})
	}
}

func TestNormalizeRelayOff(t *testing.T) {
	obs, err := Normalize([]byte(`{"relay_state": 0}`))
	require.NoError(t, err)
	require.NotNil(t, obs.IsOn)
	assert.False(t, *obs.IsOn)

	obs, err = Normalize([]byte(`{"relay_state": 2}`))
	require.NoError(t, err)
	require.NotNil(t, obs.IsOn)
	assert.False(t, *obs.IsOn, "only relay_state == 1 means on")
}

func TestNormalizeRelayPrecedence(t *testing.T) {
	// relay_state wins over the other shapes when several are present.
	obs, err := Normalize([]byte(`{"relay_state": 0, "relay0": {"ison": true}, "ison": true}`))
	require.NoError(t, err)
	require.NotNil(t, obs.IsOn)
	assert.False(t, *obs.IsOn)
}

func TestNormalizePower(t *testing.T) {
	obs, err := Normalize([]byte(`{"power": 42.50}`))
	require.NoError(t, err)
	require.NotNil(t, obs.Power)
	assert.Equal(t, "42.50", *obs.Power, "decimal text must survive verbatim")

	obs, err = Normalize([]byte(`{"power0": 7.1}`))
	require.NoError(t, err)
	require.NotNil(t, obs.Power)
	assert.Equal(t, "7.1", *obs.Power)

	// power wins over power0.
	obs, err = Normalize([]byte(`{"power": 1.0, "power0": 2.0}`))
	require.NoError(t, err)
	require.NotNil(t, obs.Power)
	assert.Equal(t, "1.0", *obs.Power)
}

func TestNormalizeUnrecognizedPayload(t *testing.T) {
	// Valid JSON with none of the known fields is an empty observation, not an
	// error. The message still refreshes device liveness.
	obs, err := Normalize([]byte(`{"temperature": 21.3, "uptime": 999}`))
	require.NoError(t, err)
	assert.Nil(t, obs.IsOn)
	assert.Nil(t, obs.Power)
}

func TestNormalizeMalformedPayload(t *testing.T) {
	_, err := Normalize([]byte(`{"relay_state":`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadPayload)

	_, err = Normalize([]byte(`on`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadPayload)
}
