package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/db"
	"github.com/tonytopp/shelly-home/internal/dispatcher"
	"github.com/tonytopp/shelly-home/internal/models"
	"github.com/tonytopp/shelly-home/internal/registry"
	"github.com/tonytopp/shelly-home/internal/web/middleware"
	webModels "github.com/tonytopp/shelly-home/internal/web/models"
)

// TopicSubscriber lets device CRUD keep the telemetry subscriptions in sync.
type TopicSubscriber interface {
	SubscribeDevice(topic string) error
	UnsubscribeDevice(topic string) error
}

func RegisterDeviceRoutes(
	r *gin.Engine,
	mw *middleware.MiddlewareManager,
	database *db.DB,
	reg *registry.Registry,
	disp *dispatcher.Dispatcher,
	topics TopicSubscriber,
	logger *zap.SugaredLogger,
) {
	devices := r.Group("/api/devices")
	devices.Use(mw.RequireAuth())
	{
		devices.GET("", func(c *gin.Context) {
			c.JSON(http.StatusOK, reg.Snapshot())
		})

		devices.GET("/:id", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device id"})
				return
			}
			dev, ok := reg.Get(id)
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
				return
			}
			c.JSON(http.StatusOK, dev)
		})

		devices.POST("", func(c *gin.Context) {
			var req webModels.AddDeviceRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			if !slices.Contains(models.DeviceTypes, req.Type) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device type"})
				return
			}

			created, err := database.InsertDevice(c, &models.Device{
				Name:      req.Name,
				Type:      req.Type,
				IPAddress: req.IPAddress,
				MQTTTopic: req.MQTTTopic,
			})
			if err != nil {
				logger.Errorw("failed to create device", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create device"})
				return
			}
			reg.Add(*created)

			if err := topics.SubscribeDevice(created.MQTTTopic); err != nil {
				logger.Warnw("failed to subscribe device topic", "topic", created.MQTTTopic, "error", err)
			}
			c.JSON(http.StatusCreated, created)
		})

		devices.PATCH("/:id", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device id"})
				return
			}
			var req webModels.UpdateDeviceRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}

			existing, err := database.GetDeviceByID(c, id)
			if errors.Is(err, db.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch device"})
				return
			}

			oldTopic := existing.MQTTTopic
			if req.Name != nil {
				existing.Name = *req.Name
			}
			if req.Type != nil {
				if !slices.Contains(models.DeviceTypes, *req.Type) {
					c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device type"})
					return
				}
				existing.Type = *req.Type
			}
			if req.IPAddress != nil {
				existing.IPAddress = *req.IPAddress
			}
			if req.MQTTTopic != nil {
				existing.MQTTTopic = *req.MQTTTopic
			}

			if err := database.UpdateDeviceInfo(c, existing); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update device"})
				return
			}
			reg.UpdateInfo(*existing)

			if existing.MQTTTopic != oldTopic {
				if err := topics.UnsubscribeDevice(oldTopic); err != nil {
					logger.Warnw("failed to unsubscribe old topic", "topic", oldTopic, "error", err)
				}
				if err := topics.SubscribeDevice(existing.MQTTTopic); err != nil {
					logger.Warnw("failed to subscribe new topic", "topic", existing.MQTTTopic, "error", err)
				}
			}
			c.JSON(http.StatusOK, existing)
		})

		devices.DELETE("/:id", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device id"})
				return
			}
			dev, ok := reg.Get(id)
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
				return
			}
			if err := database.DeleteDevice(c, id); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete device"})
				return
			}
			reg.Remove(id)
			if err := topics.UnsubscribeDevice(dev.MQTTTopic); err != nil {
				logger.Warnw("failed to unsubscribe device topic", "topic", dev.MQTTTopic, "error", err)
			}
			c.JSON(http.StatusOK, gin.H{"success": true})
		})

		devices.POST("/:id/control", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device id"})
				return
			}
			var req webModels.ControlDeviceRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}

			action := models.ActionTurnOff
			if req.Action == "turn_on" {
				action = models.ActionTurnOn
			}

			switch err := disp.Dispatch(id, action); {
			case errors.Is(err, registry.ErrDeviceNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
			case errors.Is(err, dispatcher.ErrDeviceOffline):
				c.JSON(http.StatusConflict, gin.H{"error": "Device is offline"})
			case err != nil:
				logger.Errorw("manual control failed", "device", id, "error", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send command"})
			default:
				c.JSON(http.StatusOK, gin.H{"success": true, "message": "Command sent"})
			}
		})
	}
}
