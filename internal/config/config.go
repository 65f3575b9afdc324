package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	DBURL        string
	RedisAddr    string
	MQTTBroker   string
	MQTTClientID string
	HTTPAddr     string
	LogLevel     string
	JWTSecret    string

	PriceZone    string
	PriceAPIBase string
	// Epsilon for the "eq" price operator. 0 keeps exact comparison.
	PriceEpsilon float64

	WeatherLatitude  string
	WeatherLongitude string
	WeatherAPIBase   string
	WeatherLocation  string

	TickInterval    time.Duration
	StalenessWindow time.Duration
	FeedRefresh     time.Duration
	// FireOnBoot makes the first tick after start treat an already satisfied
	// condition as a rising edge.
	FireOnBoot bool
}

// LoadConfig reads configuration from .env and environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	viper.AutomaticEnv()

	viper.SetDefault("HTTP_ADDR", ":5069")
	viper.SetDefault("MQTT_CLIENT_ID", "shellyhome-backend")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("PRICE_ZONE", "SE3")
	viper.SetDefault("PRICE_API_BASE", "https://www.elprisetjustnu.se/api/v1/prices")
	viper.SetDefault("PRICE_EPSILON", 0.0)
	viper.SetDefault("WEATHER_LATITUDE", "58.4")
	viper.SetDefault("WEATHER_LONGITUDE", "12.55")
	viper.SetDefault("WEATHER_API_BASE", "https://opendata-download-metfcst.smhi.se/api/category/pmp3g/version/2")
	viper.SetDefault("WEATHER_LOCATION", "Vänersnäs")
	viper.SetDefault("TICK_INTERVAL", "30s")
	viper.SetDefault("STALENESS_WINDOW", "5m")
	viper.SetDefault("FEED_REFRESH", "15m")
	viper.SetDefault("FIRE_ON_BOOT", false)

	cfg := &Config{
		DBURL:            viper.GetString("DB_URL"),
		RedisAddr:        viper.GetString("REDIS_ADDR"),
		MQTTBroker:       viper.GetString("MQTT_BROKER"),
		MQTTClientID:     viper.GetString("MQTT_CLIENT_ID"),
		HTTPAddr:         viper.GetString("HTTP_ADDR"),
		LogLevel:         viper.GetString("LOG_LEVEL"),
		JWTSecret:        viper.GetString("JWT_SECRET"),
		PriceZone:        viper.GetString("PRICE_ZONE"),
		PriceAPIBase:     viper.GetString("PRICE_API_BASE"),
		PriceEpsilon:     viper.GetFloat64("PRICE_EPSILON"),
		WeatherLatitude:  viper.GetString("WEATHER_LATITUDE"),
		WeatherLongitude: viper.GetString("WEATHER_LONGITUDE"),
		WeatherAPIBase:   viper.GetString("WEATHER_API_BASE"),
		WeatherLocation:  viper.GetString("WEATHER_LOCATION"),
		TickInterval:     viper.GetDuration("TICK_INTERVAL"),
		StalenessWindow:  viper.GetDuration("STALENESS_WINDOW"),
		FeedRefresh:      viper.GetDuration("FEED_REFRESH"),
		FireOnBoot:       viper.GetBool("FIRE_ON_BOOT"),
	}
	return cfg, nil
}
