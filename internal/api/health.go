package api

import (
	"net/http"
	"time"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/database"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/mqttclient"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/session"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Pipeline      session.Stats     `json:"pipeline"`
}

type HealthHandler struct {
	coord     *session.Coordinator
	db        *database.DB
	mqtt      *mqttclient.Publisher
	version   string
	startTime time.Time
}

func NewHealthHandler(coord *session.Coordinator, db *database.DB, mqtt *mqttclient.Publisher, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		coord:     coord,
		db:        db,
		mqtt:      mqtt,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if h.db != nil {
		if err := h.db.HealthCheck(r.Context()); err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		Pipeline:      h.coord.Stats(),
	})
}
