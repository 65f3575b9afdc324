package feeds

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/models"
)

func TestSkyStateOf(t *testing.T) {
	tests := []struct {
		symbol int
		want   models.SkyState
	}{
		{1, models.SkyClearSky},
		{2, models.SkyFewClouds},
		{3, models.SkyScatteredClouds},
		{4, models.SkyScatteredClouds},
		{5, models.SkyBrokenClouds},
		{6, models.SkyBrokenClouds},
		{7, models.SkyMist},
		{8, models.SkyShowerRain},
		{10, models.SkyShowerRain},
		{11, models.SkyThunderstorm},
		{21, models.SkyThunderstorm},
		{18, models.SkyRain},
		{20, models.SkyRain},
		{12, models.SkySnow},
		{17, models.SkySnow},
		{22, models.SkySnow},
		{27, models.SkySnow},
		{0, models.SkyClearSky},
		{99, models.SkyClearSky},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, skyStateOf(tc.symbol), "symbol %d", tc.symbol)
	}
}

func seriesEntry(validTime time.Time, temp, wind, humidity, precip float64, symbol int) string {
	return fmt.Sprintf(`{
		"validTime": %q,
		"parameters": [
			{"name": "t", "unit": "Cel", "values": [%g]},
			{"name": "ws", "unit": "m/s", "values": [%g]},
			{"name": "r", "unit": "percent", "values": [%g]},
			{"name": "pmean", "unit": "kg/m2/h", "values": [%g]},
			{"name": "Wsymb2", "unit": "category", "values": [%d]}
		]
	}`, validTime.Format(time.RFC3339), temp, wind, humidity, precip, symbol)
}

func forecastOf(t *testing.T, entries ...string) smhiForecast {
	t.Helper()
	doc := `{"timeSeries": [` + strings.Join(entries, ",") + `]}`
	var raw smhiForecast
	require.NoError(t, json.Unmarshal([]byte(doc), &raw))
	return raw
}

func TestBuildSnapshot(t *testing.T) {
	c := NewWeatherClient("http://example", "59.3", "18.1", "Stockholm", nil, zap.NewNop().Sugar())
	day1 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	raw := forecastOf(t,
		seriesEntry(day1, 4.0, 3.0, 80, 0.0, 19),
		seriesEntry(day1.Add(6*time.Hour), 8.0, 5.0, 60, 1.5, 19),
		seriesEntry(day1.Add(9*time.Hour), 6.0, 4.0, 70, 0.5, 3),
		seriesEntry(day2, -2.0, 2.0, 90, 0.2, 25),
	)

	snap := c.buildSnapshot(raw)

	assert.Equal(t, "Stockholm", snap.Location)
	assert.Equal(t, 4.0, snap.CurrentTemperature)
	assert.Equal(t, 3.0, snap.Wind)
	assert.Equal(t, 80.0, snap.Humidity)
	assert.Equal(t, models.SkyRain, snap.Condition, "current conditions come from the nearest entry")

	require.Len(t, snap.Forecast, 2)
	first := snap.Forecast[0]
	assert.Equal(t, "2026-03-10", first.Date)
	assert.Equal(t, 4.0, first.TempMin)
	assert.Equal(t, 8.0, first.TempMax)
	assert.Equal(t, 6.0, first.Temperature)
	assert.Equal(t, 2.0, first.Precipitation, "precipitation is summed, not averaged")
	assert.Equal(t, 4.0, first.WindSpeed)
	assert.Equal(t, 70.0, first.Humidity)
	assert.Equal(t, models.SkyRain, first.Condition, "symbol 19 appears twice, 3 once")
	assert.Equal(t, "Moderate rain", first.Description)

	second := snap.Forecast[1]
	assert.Equal(t, "2026-03-11", second.Date)
	assert.Equal(t, models.SkySnow, second.Condition)
	assert.Equal(t, "Light snowfall", second.Description)
}

func TestBuildSnapshotCapsForecastDays(t *testing.T) {
	c := NewWeatherClient("http://example", "59.3", "18.1", "Stockholm", nil, zap.NewNop().Sugar())
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	var entries []string
	for day := 0; day < 10; day++ {
		entries = append(entries, seriesEntry(start.AddDate(0, 0, day), 5.0, 1.0, 50, 0, 1))
	}

	snap := c.buildSnapshot(forecastOf(t, entries...))
	require.Len(t, snap.Forecast, forecastDays)
	assert.Equal(t, "2026-03-10", snap.Forecast[0].Date)
	assert.Equal(t, "2026-03-14", snap.Forecast[len(snap.Forecast)-1].Date)
}
