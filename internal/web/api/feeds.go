package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/feeds"
	"github.com/tonytopp/shelly-home/internal/web/middleware"
)

func RegisterFeedRoutes(
	r *gin.Engine,
	mw *middleware.MiddlewareManager,
	prices *feeds.PriceClient,
	weather *feeds.WeatherClient,
	logger *zap.SugaredLogger,
) {
	group := r.Group("/api")
	group.Use(mw.RequireAuth())
	{
		group.GET("/electricity-prices", func(c *gin.Context) {
			points, err := prices.CurrentPrices(c)
			if err != nil {
				logger.Errorw("price feed request failed", "error", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch electricity prices"})
				return
			}
			c.JSON(http.StatusOK, points)
		})

		group.GET("/weather", func(c *gin.Context) {
			snap, err := weather.CurrentWeather(c)
			if err != nil {
				logger.Errorw("weather feed request failed", "error", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch weather data"})
				return
			}
			c.JSON(http.StatusOK, snap)
		})
	}
}
