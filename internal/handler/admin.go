package handler

import (
	"net/http"
	"runtime"
	"time"

	"bidhub-api/internal/repository"
	"bidhub-api/internal/service"
	"bidhub-api/pkg/response"
)

// AdminHandler handles admin HTTP requests.
type AdminHandler struct {
	lots      repository.LotRepository
	scheduler *service.ReconcileScheduler
	dbType    string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(lots repository.LotRepository, scheduler *service.ReconcileScheduler, dbType string) *AdminHandler {
	return &AdminHandler{
		lots:      lots,
		scheduler: scheduler,
		dbType:    dbType,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType
	stats["reconciler_running"] = h.scheduler.IsRunning()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":   float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":     float64(memStats.Sys) / 1024 / 1024,
		"num_gc":     memStats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}

	if lotStats, err := h.lots.GetStats(r.Context()); err == nil {
		stats["lots"] = lotStats
	} else {
		stats["lots"] = map[string]interface{}{"status": "error", "error": err.Error()}
	}

	response.OK(w, stats)
}
