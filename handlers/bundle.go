package handlers

import (
	"net/http"

	"demobook/utils"

	"github.com/gin-gonic/gin"
)

// HandlerBundle groups the endpoint handlers handed to the router.
type HandlerBundle struct {
	Booking *BookingHandler
	Health  *utils.HealthMonitor
}

// HealthHandler reports the latest dependency snapshot.
func (hb *HandlerBundle) HealthHandler(c *gin.Context) {
	if hb.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	status := hb.Health.Status()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
