package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "sessions": a.Sessions.Len()})
}

// Metrics exposes the Prometheus collectors registered by metrics.Init.
func (a *App) Metrics() http.Handler {
	return promhttp.Handler()
}
