package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tonytopp/shelly-home/internal/db"
	"github.com/tonytopp/shelly-home/internal/models"
	"github.com/tonytopp/shelly-home/internal/registry"
	"github.com/tonytopp/shelly-home/internal/web/middleware"
	webModels "github.com/tonytopp/shelly-home/internal/web/models"
)

func RegisterAutomationRoutes(
	r *gin.Engine,
	mw *middleware.MiddlewareManager,
	database *db.DB,
	reg *registry.Registry,
	logger *zap.SugaredLogger,
) {
	rules := r.Group("/api/automation-rules")
	rules.Use(mw.RequireAuth())
	{
		rules.GET("", func(c *gin.Context) {
			all, err := database.GetAllRules(c)
			if err != nil {
				logger.Errorw("failed to fetch rules", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rules"})
				return
			}
			if all == nil {
				all = []models.AutomationRule{}
			}
			c.JSON(http.StatusOK, all)
		})

		rules.GET("/:id", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule id"})
				return
			}
			rule, err := database.GetRuleByID(c, id)
			if errors.Is(err, db.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Automation rule not found"})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rule"})
				return
			}
			c.JSON(http.StatusOK, rule)
		})

		rules.POST("", func(c *gin.Context) {
			var req webModels.AddRuleRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}

			rule := models.AutomationRule{
				Name:        req.Name,
				Description: req.Description,
				DeviceID:    req.DeviceID,
				IsActive:    true,
			}
			if req.IsActive != nil {
				rule.IsActive = *req.IsActive
			}
			if err := json.Unmarshal(req.Condition, &rule.Condition); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid condition: " + err.Error()})
				return
			}
			if err := json.Unmarshal(req.Action, &rule.Action); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action: " + err.Error()})
				return
			}
			if err := rule.Validate(); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if _, ok := reg.Get(rule.DeviceID); !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Rule references unknown device"})
				return
			}

			created, err := database.InsertRule(c, &rule)
			if err != nil {
				logger.Errorw("failed to create rule", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rule"})
				return
			}
			// The scheduler reads rules from the store each tick, so the new
			// rule is picked up without any notification.
			c.JSON(http.StatusCreated, created)
		})

		rules.PATCH("/:id", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule id"})
				return
			}
			var req webModels.UpdateRuleRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}

			existing, err := database.GetRuleByID(c, id)
			if errors.Is(err, db.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Automation rule not found"})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rule"})
				return
			}

			if req.Name != nil {
				existing.Name = *req.Name
			}
			if req.Description != nil {
				existing.Description = *req.Description
			}
			if req.DeviceID != nil {
				existing.DeviceID = *req.DeviceID
			}
			if req.Condition != nil {
				if err := json.Unmarshal(*req.Condition, &existing.Condition); err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid condition: " + err.Error()})
					return
				}
			}
			if req.Action != nil {
				if err := json.Unmarshal(*req.Action, &existing.Action); err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action: " + err.Error()})
					return
				}
			}
			if req.IsActive != nil {
				existing.IsActive = *req.IsActive
			}

			if err := existing.Validate(); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if _, ok := reg.Get(existing.DeviceID); !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Rule references unknown device"})
				return
			}

			if err := database.UpdateRule(c, existing); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rule"})
				return
			}
			c.JSON(http.StatusOK, existing)
		})

		rules.DELETE("/:id", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule id"})
				return
			}
			err = database.DeleteRule(c, id)
			if errors.Is(err, db.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Automation rule not found"})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rule"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true})
		})

		rules.POST("/:id/toggle", func(c *gin.Context) {
			id, err := strconv.ParseInt(c.Param("id"), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule id"})
				return
			}
			rule, err := database.GetRuleByID(c, id)
			if errors.Is(err, db.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Automation rule not found"})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rule"})
				return
			}
			rule.IsActive = !rule.IsActive
			if err := database.SetRuleActive(c, id, rule.IsActive); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to toggle rule"})
				return
			}
			c.JSON(http.StatusOK, rule)
		})
	}
}
