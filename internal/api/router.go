package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupAPIRouter builds the REST control surface mounted under /api.
func SetupAPIRouter(h *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	m := h.metrics

	r.Method(http.MethodGet, "/state", m.WrapHandler("state", http.HandlerFunc(h.HandleState)))
	r.Method(http.MethodPost, "/tick", m.WrapHandler("tick", http.HandlerFunc(h.HandleTick)))

	r.Route("/anomaly", func(r chi.Router) {
		r.Method(http.MethodPost, "/", m.WrapHandler("anomaly_trigger", http.HandlerFunc(h.HandleTriggerAnomaly)))
		r.Method(http.MethodDelete, "/", m.WrapHandler("anomaly_clear", http.HandlerFunc(h.HandleClearAnomaly)))
	})

	r.Method(http.MethodPost, "/appliances/{id}", m.WrapHandler("appliance", http.HandlerFunc(h.HandleToggleAppliance)))

	r.Route("/settings", func(r chi.Router) {
		r.Method(http.MethodGet, "/", m.WrapHandler("settings_get", http.HandlerFunc(h.HandleGetSettings)))
		r.Method(http.MethodPut, "/", m.WrapHandler("settings_put", http.HandlerFunc(h.HandlePutSettings)))
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Method(http.MethodGet, "/", m.WrapHandler("alerts_get", http.HandlerFunc(h.HandleGetAlerts)))
		r.Method(http.MethodDelete, "/", m.WrapHandler("alerts_clear", http.HandlerFunc(h.HandleClearAlerts)))
	})

	return r
}

// SetupUIRouter is the top-level router: web UI, websocket, health, metrics
// and the mounted REST API.
func SetupUIRouter(h *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/", h.ServeWebUI)
	r.Get("/ws", h.HandleWebSocket)
	r.Get("/health", h.HandleHealth)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}
	r.Mount("/api", SetupAPIRouter(h))

	// Serve static files (CSS, JS)
	if staticPath, ok := h.staticDir(); ok {
		fs := http.FileServer(http.Dir(staticPath))
		r.Handle("/static/*", http.StripPrefix("/static/", fs))
	}

	return r
}
