// Health HTTP handler.
//
// Reports process liveness plus database connectivity. The database check is
// a real round-trip (connection ping), so a wedged SQLite handle turns the
// endpoint red instead of lying green.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/probelab/go-interview-backend/internal/repo"
)

// HealthResponse is the data payload of GET /api/health.
type HealthResponse struct {
	Status    string    `json:"status"` // healthy|unhealthy
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"` // seconds since process start
	Version   string    `json:"version"`
	Database  string    `json:"database"` // connected|disconnected
}

// Health godoc
// @ID          health
// @Summary     Health check
// @Description Returns service status, uptime, version, and database connectivity.
// @Tags        Health
// @Produce     json
//
// @Success     200  {object}  handlers.Envelope  "Healthy"
// @Failure     503  {object}  handlers.Envelope  "Database unreachable"
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	dbStatus := "connected"
	if h.db == nil || repo.Ping(h.db) != nil {
		dbStatus = "disconnected"
	}

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startedAt).Seconds(),
		Version:   h.version,
		Database:  dbStatus,
	}
	status := http.StatusOK
	if dbStatus != "connected" {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	ok(c, status, resp)
}
