package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/browserfetch/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when more than 80% of the session slots are busy.
func Health(f Fetcher, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		inFlight := int(f.InFlight())
		maxConcurrent := f.MaxConcurrent()

		status := "healthy"
		if maxConcurrent > 0 && inFlight > int(float64(maxConcurrent)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status: status,
			Uptime: time.Since(startTime).Round(time.Second).String(),
			Browser: models.BrowserInfo{
				Driver:        f.DriverName(),
				Engine:        f.Engine().String(),
				InFlight:      inFlight,
				MaxConcurrent: maxConcurrent,
			},
			Version: Version,
		})
	}
}
