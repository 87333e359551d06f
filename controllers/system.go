package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"civicspot/utils"
)

const Version = "1.0.0"

type SystemController struct {
	db Pinger
}

func NewSystemController(db Pinger) *SystemController {
	return &SystemController{db: db}
}

func (sc *SystemController) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "CivicSpot API is running!",
		"version": Version,
		"status":  "active",
	})
}

// Health reports whether MongoDB answers a ping.
func (sc *SystemController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := sc.db.Ping(ctx); err != nil {
		log.WithError(err).Warn("health check failed")
		utils.Abort(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	utils.Success(c, http.StatusOK, "ok", gin.H{"database": "up"})
}

func NotFound(c *gin.Context) {
	utils.Abort(c, http.StatusNotFound, "Route not found")
}
