package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tonytopp/shelly-home/internal/config"
	"github.com/tonytopp/shelly-home/internal/db"
	"github.com/tonytopp/shelly-home/internal/dispatcher"
	"github.com/tonytopp/shelly-home/internal/engine"
	"github.com/tonytopp/shelly-home/internal/feeds"
	"github.com/tonytopp/shelly-home/internal/mqtt"
	redispkg "github.com/tonytopp/shelly-home/internal/redis"
	"github.com/tonytopp/shelly-home/internal/registry"
	"github.com/tonytopp/shelly-home/internal/scheduler"
	"github.com/tonytopp/shelly-home/internal/taskqueue"
	"github.com/tonytopp/shelly-home/internal/telemetry"
	"github.com/tonytopp/shelly-home/internal/utils"
	"github.com/tonytopp/shelly-home/internal/web"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	database, err := db.NewDB(ctx, cfg.DBURL)
	if err != nil {
		logger.Fatalw("failed to connect to database", "error", err)
	}
	defer database.Close()

	redisClient := redispkg.NewRedisClient(cfg.RedisAddr)
	cache := redispkg.NewCache(redisClient)

	mqttClient, err := mqtt.NewMQTTClient(cfg.MQTTBroker, cfg.MQTTClientID)
	if err != nil {
		logger.Fatalw("failed to connect to MQTT broker", "error", err)
	}
	defer mqttClient.Disconnect(250)

	// Registry is the single owner of device state; seed it from the store.
	reg := registry.NewRegistry(database, cache, cfg.StalenessWindow, logger)
	devices, err := database.GetAllDevices(ctx)
	if err != nil {
		logger.Fatalw("failed to load devices", "error", err)
	}
	reg.Load(devices)

	ingestor := telemetry.NewIngestor(mqttClient, reg, logger)
	if err := ingestor.Start("shellies/#"); err != nil {
		logger.Fatalw("failed to subscribe to telemetry", "error", err)
	}

	disp := dispatcher.NewDispatcher(reg, mqtt.NewTransport(mqttClient), logger)

	retryQueue := taskqueue.NewQueue(cfg.RedisAddr, logger)
	defer retryQueue.Close()
	retryWorker := taskqueue.NewWorker(cfg.RedisAddr, disp, logger)
	if err := retryWorker.Start(); err != nil {
		logger.Fatalw("failed to start retry worker", "error", err)
	}

	prices := feeds.NewPriceClient(cfg.PriceAPIBase, cfg.PriceZone, cache, logger)
	weather := feeds.NewWeatherClient(cfg.WeatherAPIBase, cfg.WeatherLatitude, cfg.WeatherLongitude, cfg.WeatherLocation, cache, logger)

	evaluator := engine.NewEvaluator(cfg.PriceEpsilon)
	sched := scheduler.NewScheduler(database, evaluator, reg, prices, weather, disp, retryQueue, cfg.FireOnBoot, logger)

	timer := cron.New()
	if _, err := timer.AddFunc("@every "+cfg.TickInterval.String(), func() {
		sched.Tick(context.Background(), time.Now())
	}); err != nil {
		logger.Fatalw("failed to schedule evaluation tick", "error", err)
	}
	if _, err := timer.AddFunc("@every "+cfg.FeedRefresh.String(), func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := prices.Refresh(refreshCtx); err != nil {
			logger.Warnw("price refresh failed", "error", err)
		}
		if _, err := weather.Refresh(refreshCtx); err != nil {
			logger.Warnw("weather refresh failed", "error", err)
		}
	}); err != nil {
		logger.Fatalw("failed to schedule feed refresh", "error", err)
	}
	timer.Start()

	webServer := web.NewWebServer(database, reg, disp, ingestor, prices, weather, cfg.JWTSecret, logger)
	go func() {
		if err := webServer.Start(cfg.HTTPAddr); err != nil {
			logger.Fatalw("web server stopped", "error", err)
		}
	}()
	logger.Infow("started", "http", cfg.HTTPAddr, "tick", cfg.TickInterval, "staleness", cfg.StalenessWindow)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	<-timer.Stop().Done()
	retryWorker.Stop()
	logger.Infow("shutdown complete")
}
