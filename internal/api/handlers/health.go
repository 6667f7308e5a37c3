package handlers

import (
	"net/http"
	"time"
)

type HealthHandler struct {
	started time.Time
	engines func() []string
}

func NewHealthHandler(engines func() []string) *HealthHandler {
	return &HealthHandler{started: time.Now(), engines: engines}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now().UTC(),
		"uptime":    int64(time.Since(h.started).Seconds()),
		"engines":   len(h.engines()),
	}, http.StatusOK)
}
