package feeds

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/models"
	redispkg "github.com/tonytopp/shelly-home/internal/redis"
)

const (
	weatherCacheTTL  = 30 * time.Minute
	forecastDays     = 5
	weatherCacheKey  = "weather:current"
	defaultSkySymbol = 1
)

// smhiForecast mirrors the SMHI point-forecast response.
type smhiForecast struct {
	ApprovedTime  time.Time `json:"approvedTime"`
	ReferenceTime time.Time `json:"referenceTime"`
	TimeSeries    []struct {
		ValidTime  time.Time `json:"validTime"`
		Parameters []struct {
			Name   string    `json:"name"`
			Values []float64 `json:"values"`
			Unit   string    `json:"unit"`
		} `json:"parameters"`
	} `json:"timeSeries"`
}

// symbolDescriptions maps SMHI Wsymb2 codes to display text.
var symbolDescriptions = map[int]string{
	1: "Clear sky", 2: "Nearly clear sky", 3: "Variable cloudiness",
	4: "Halfclear sky", 5: "Cloudy sky", 6: "Overcast", 7: "Fog",
	8: "Light rain showers", 9: "Moderate rain showers", 10: "Heavy rain showers",
	11: "Thunderstorm", 12: "Light sleet showers", 13: "Moderate sleet showers",
	14: "Heavy sleet showers", 15: "Light snow showers", 16: "Moderate snow showers",
	17: "Heavy snow showers", 18: "Light rain", 19: "Moderate rain",
	20: "Heavy rain", 21: "Thunder", 22: "Light sleet", 23: "Moderate sleet",
	24: "Heavy sleet", 25: "Light snowfall", 26: "Moderate snowfall", 27: "Heavy snowfall",
}

// skyStateOf collapses the 27 Wsymb2 codes onto the nine sky states rules
// match against.
func skyStateOf(symbol int) models.SkyState {
	switch {
	case symbol == 1:
		return models.SkyClearSky
	case symbol == 2:
		return models.SkyFewClouds
	case symbol == 3 || symbol == 4:
		return models.SkyScatteredClouds
	case symbol == 5 || symbol == 6:
		return models.SkyBrokenClouds
	case symbol == 7:
		return models.SkyMist
	case symbol >= 8 && symbol <= 10:
		return models.SkyShowerRain
	case symbol == 11 || symbol == 21:
		return models.SkyThunderstorm
	case symbol >= 18 && symbol <= 20:
		return models.SkyRain
	case (symbol >= 12 && symbol <= 17) || (symbol >= 22 && symbol <= 27):
		return models.SkySnow
	}
	return models.SkyClearSky
}

func describeSymbol(symbol int) string {
	if d, ok := symbolDescriptions[symbol]; ok {
		return d
	}
	return "Unknown weather"
}

// WeatherClient fetches and summarizes the SMHI point forecast.
type WeatherClient struct {
	base     string
	lat, lon string
	location string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
	cache    *redispkg.Cache
	logger   *zap.SugaredLogger
}

func NewWeatherClient(base, lat, lon, location string, cache *redispkg.Cache, logger *zap.SugaredLogger) *WeatherClient {
	return &WeatherClient{
		base:     base,
		lat:      lat,
		lon:      lon,
		location: location,
		client:   &http.Client{Timeout: fetchTimeout},
		breaker:  newBreaker("weather-feed"),
		cache:    cache,
		logger:   logger,
	}
}

func (c *WeatherClient) url() string {
	return fmt.Sprintf("%s/geotype/point/lon/%s/lat/%s/data.json", c.base, c.lon, c.lat)
}

// CurrentWeather returns the latest snapshot, from cache when possible.
func (c *WeatherClient) CurrentWeather(ctx context.Context) (*models.WeatherSnapshot, error) {
	if c.cache != nil {
		var snap models.WeatherSnapshot
		hit, err := c.cache.GetJSON(ctx, weatherCacheKey, &snap)
		if err != nil {
			c.logger.Warnw("weather cache read failed", "error", err)
		} else if hit {
			return &snap, nil
		}
	}
	return c.Refresh(ctx)
}

// Refresh fetches the forecast, rebuilds the snapshot and re-caches it.
func (c *WeatherClient) Refresh(ctx context.Context) (*models.WeatherSnapshot, error) {
	var raw smhiForecast
	if err := getJSON(ctx, c.client, c.breaker, c.url(), &raw); err != nil {
		return nil, err
	}
	if len(raw.TimeSeries) == 0 {
		return nil, fmt.Errorf("%w: empty forecast", ErrUpstream)
	}

	snap := c.buildSnapshot(raw)
	c.logger.Infow("fetched weather forecast", "location", c.location, "days", len(snap.Forecast))

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, weatherCacheKey, snap, weatherCacheTTL); err != nil {
			c.logger.Warnw("weather cache write failed", "error", err)
		}
	}
	return snap, nil
}

type dayBucket struct {
	temps, precip, wind, humidity []float64
	symbols                       []int
}

func (c *WeatherClient) buildSnapshot(raw smhiForecast) *models.WeatherSnapshot {
	snap := &models.WeatherSnapshot{Location: c.location, Condition: skyStateOf(defaultSkySymbol)}

	// Current conditions come from the first (nearest) time-series entry.
	for _, param := range raw.TimeSeries[0].Parameters {
		if len(param.Values) == 0 {
			continue
		}
		v := param.Values[0]
		switch param.Name {
		case "t":
			snap.CurrentTemperature = v
		case "ws":
			snap.Wind = v
		case "r":
			snap.Humidity = v
		case "pmean":
			snap.Precipitation = v
		case "Wsymb2":
			snap.Condition = skyStateOf(int(v))
		}
	}

	// Bucket the series by calendar day for the short forecast.
	buckets := make(map[string]*dayBucket)
	for _, entry := range raw.TimeSeries {
		date := entry.ValidTime.Format("2006-01-02")
		b, ok := buckets[date]
		if !ok {
			b = &dayBucket{}
			buckets[date] = b
		}
		for _, param := range entry.Parameters {
			if len(param.Values) == 0 {
				continue
			}
			v := param.Values[0]
			switch param.Name {
			case "t":
				b.temps = append(b.temps, v)
			case "pmean":
				b.precip = append(b.precip, v)
			case "ws":
				b.wind = append(b.wind, v)
			case "r":
				b.humidity = append(b.humidity, v)
			case "Wsymb2":
				b.symbols = append(b.symbols, int(v))
			}
		}
	}

	for date, b := range buckets {
		if len(b.temps) == 0 {
			continue
		}
		symbol := modalSymbol(b.symbols)
		snap.Forecast = append(snap.Forecast, models.DayForecast{
			Date:          date,
			TempMin:       minOf(b.temps),
			TempMax:       maxOf(b.temps),
			Temperature:   avgOf(b.temps),
			Precipitation: sumOf(b.precip),
			WindSpeed:     avgOf(b.wind),
			Humidity:      avgOf(b.humidity),
			Condition:     skyStateOf(symbol),
			Description:   describeSymbol(symbol),
		})
	}

	sort.Slice(snap.Forecast, func(i, j int) bool { return snap.Forecast[i].Date < snap.Forecast[j].Date })
	if len(snap.Forecast) > forecastDays {
		snap.Forecast = snap.Forecast[:forecastDays]
	}
	return snap
}

func modalSymbol(symbols []int) int {
	counts := make(map[int]int)
	best, bestCount := defaultSkySymbol, 0
	for _, s := range symbols {
		counts[s]++
		if counts[s] > bestCount {
			best, bestCount = s, counts[s]
		}
	}
	return best
}

func minOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func avgOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	return sumOf(vs) / float64(len(vs))
}

func sumOf(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s
}
