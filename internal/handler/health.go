package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is anything whose liveness the health check should report.
// *sqlite.DB and the Redis blacklist both implement it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler answers GET /healthz.
type HealthHandler struct {
	deps map[string]Pinger
}

func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HandleHealth pings every dependency with a short timeout. Any failure
// turns the whole response into a 503 so load balancers pull the instance.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status": overall,
		"checks": checks,
	})
}
