package server

import (
	"sort"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/utils"
)

const (
	DefaultHealthPath = "/health"
	StatusHealthy     = "healthy"
	StatusUnhealthy   = "unhealthy"
)

type HealthReport struct {
	Status string            `json:"status"`
	Name   string            `json:"name"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

// RegisterHealthCheck reports name as unhealthy whenever manager is not running.
func (h *FastHTTPServer) RegisterHealthCheck(name string, manager types.LifecycleManager) {
	h.healthMu.Lock()
	defer h.healthMu.Unlock()
	h.healthChecks[name] = manager
}

func (h *FastHTTPServer) Health() HealthReport {
	h.healthMu.RLock()
	names := make([]string, 0, len(h.healthChecks))
	for name := range h.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	report := HealthReport{
		Status: StatusHealthy,
		Name:   h.name,
		Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		Checks: make(map[string]string, len(names)),
	}

	for _, name := range names {
		if h.healthChecks[name].IsRunning() {
			report.Checks[name] = StatusHealthy
			continue
		}
		report.Checks[name] = StatusUnhealthy
		report.Status = StatusUnhealthy
	}
	h.healthMu.RUnlock()

	return report
}

func (h *FastHTTPServer) serveHealth(ctx *fasthttp.RequestCtx) {
	report := h.Health()

	body, err := utils.Marshal(report)
	if err != nil {
		h.logger.Error("Failed to encode health report", zap.Error(err))
		utils.CreateErrorResponse(ctx, fasthttp.StatusInternalServerError, "Internal Server Error")
		return
	}

	ctx.SetContentType("application/json")
	ctx.Response.Header.Set("Cache-Control", "no-cache")

	if report.Status != StatusHealthy {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	}

	ctx.SetBody(body)
}
