package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tonytopp/shelly-home/auth"
	webModels "github.com/tonytopp/shelly-home/internal/web/models"
)

func RegisterAuthRoutes(r *gin.Engine, authModule *auth.AuthModule) {
	group := r.Group("/api/auth")
	{
		group.POST("/register", func(c *gin.Context) {
			var req webModels.RegisterRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := authModule.Register(c, req.Username, req.Password)
			if err != nil {
				c.JSON(http.StatusConflict, gin.H{"error": "Failed to register"})
				return
			}
			c.JSON(http.StatusCreated, gin.H{"token": token})
		})

		group.POST("/login", func(c *gin.Context) {
			var req webModels.LoginRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := authModule.Login(c, req.Username, req.Password)
			if errors.Is(err, auth.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}
}
