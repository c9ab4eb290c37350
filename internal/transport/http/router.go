package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"ecowatch/monitor/internal/metrics"
)

// NewRouter wires all routes. Paths follow the EcoWatch API surface.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.HandleFunc("/ecowatch/sensors", h.HandleListSensors).Methods(http.MethodGet)
	r.HandleFunc("/ecowatch/sensors/{sensor_id}", h.HandleIngest).Methods(http.MethodPost)
	r.HandleFunc("/ecowatch/sensors/{sensor_id}", h.HandleLatest).Methods(http.MethodGet)
	r.HandleFunc("/ecowatch/sensors/{sensor_id}/history", h.HandleHistory).Methods(http.MethodGet)
	r.HandleFunc("/ecowatch/info/network-summary", h.HandleNetworkSummary).Methods(http.MethodGet)
	r.HandleFunc("/ecowatch/alerts", h.HandleAlerts).Methods(http.MethodGet)

	r.HandleFunc("/ecowatch/stream/sensors", h.HandleStreamAll).Methods(http.MethodGet)
	r.HandleFunc("/ecowatch/stream/sensors/{sensor_id}", h.HandleStreamSensor).Methods(http.MethodGet)

	r.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", metrics.HandleMetrics).Methods(http.MethodGet)

	return r
}
