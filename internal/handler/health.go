package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/segyhp/loan-tracker/internal/storage"
	"github.com/segyhp/loan-tracker/pkg/response"
)

type HealthHandler struct {
	checks  map[string]storage.Pinger
	timeout time.Duration
}

func NewHealthHandler(checks map[string]storage.Pinger, timeout time.Duration) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: timeout,
	}
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Health performs a basic health check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	response.Success(w, status)
}

// Ready pings every backing store
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		err := h.checks[name].Ping(ctx)
		cancel()

		if err != nil {
			status.Status = "error"
			status.Checks[name] = "failed: " + err.Error()
		} else {
			status.Checks[name] = "ok"
		}
	}

	if status.Status == "error" {
		response.JSON(w, http.StatusServiceUnavailable, status)
		return
	}

	response.Success(w, status)
}
