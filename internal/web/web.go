package web

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/auth"
	"github.com/tonytopp/shelly-home/internal/db"
	"github.com/tonytopp/shelly-home/internal/dispatcher"
	"github.com/tonytopp/shelly-home/internal/feeds"
	"github.com/tonytopp/shelly-home/internal/registry"
	"github.com/tonytopp/shelly-home/internal/web/api"
	"github.com/tonytopp/shelly-home/internal/web/middleware"
)

type WebServer struct {
	router *gin.Engine
}

func NewWebServer(
	database *db.DB,
	reg *registry.Registry,
	disp *dispatcher.Dispatcher,
	topics api.TopicSubscriber,
	prices *feeds.PriceClient,
	weather *feeds.WeatherClient,
	jwtSecret string,
	logger *zap.SugaredLogger,
) *WebServer {
	router := gin.Default()

	authModule := auth.NewAuthModule(database, jwtSecret)
	mw := middleware.NewMiddlewareManager(authModule)

	api.RegisterAuthRoutes(router, authModule)
	api.RegisterDeviceRoutes(router, mw, database, reg, disp, topics, logger)
	api.RegisterAutomationRoutes(router, mw, database, reg, logger)
	api.RegisterFeedRoutes(router, mw, prices, weather, logger)

	return &WebServer{router: router}
}

func (ws *WebServer) Start(addr string) error {
	return ws.router.Run(addr)
}
