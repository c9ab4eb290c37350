package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"ecowatch/monitor/internal/domain"
	"ecowatch/monitor/internal/pipeline"
	"ecowatch/monitor/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Handler serves the ingestion, query and streaming boundaries.
type Handler struct {
	coordinator *pipeline.Coordinator
	store       store.ReadingStore
	hub         *pipeline.Hub
	log         *slog.Logger
}

func NewHandler(c *pipeline.Coordinator, s store.ReadingStore, hub *pipeline.Hub, log *slog.Logger) *Handler {
	return &Handler{
		coordinator: c,
		store:       s,
		hub:         hub,
		log:         log.With("component", "http"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestResponse struct {
	Reading    domain.SensorReading `json:"reading"`
	Prediction domain.Prediction    `json:"prediction"`
	Warning    string               `json:"warning,omitempty"`
}

// HandleIngest accepts a reading submission for the sensor in the path and
// returns the committed reading with its prediction.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["sensor_id"]

	var reading domain.SensorReading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed JSON body: " + err.Error()})
		return
	}
	reading.SensorID = sensorID

	state, err := h.coordinator.Ingest(r.Context(), &reading)

	var ve *domain.ValidationError
	var fe *domain.InvalidFeatureError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ingestResponse{Reading: state.Reading, Prediction: state.Prediction})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error()})
	case errors.As(err, &fe):
		// Stored but unscorable: the reading is committed, tell the caller.
		writeJSON(w, http.StatusUnprocessableEntity, ingestResponse{
			Reading:    state.Reading,
			Prediction: state.Prediction,
			Warning:    fe.Error(),
		})
	default:
		h.log.Error("ingest failed", "sensor_id", sensorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// HandleLatest returns the latest state for one sensor.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["sensor_id"]

	state, err := h.store.Latest(r.Context(), sensorID)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "sensor not found"})
		return
	}
	if err != nil {
		h.log.Error("latest lookup failed", "sensor_id", sensorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type sensorListResponse struct {
	Sensors []domain.SensorState `json:"sensors"`
	Count   int                  `json:"count"`
}

// HandleListSensors returns every known sensor with its latest state.
func (h *Handler) HandleListSensors(w http.ResponseWriter, r *http.Request) {
	states, err := h.store.AllLatest(r.Context())
	if err != nil {
		h.log.Error("sensor list failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if states == nil {
		states = []domain.SensorState{}
	}
	writeJSON(w, http.StatusOK, sensorListResponse{Sensors: states, Count: len(states)})
}

type alertsResponse struct {
	Alerts []domain.AlertEvent `json:"alerts"`
	Count  int                 `json:"count"`
}

// HandleAlerts returns the emitted alert history, newest first, optionally
// filtered by sensor_id.
func (h *Handler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	alerts, err := h.store.Alerts(r.Context(), r.URL.Query().Get("sensor_id"), limit)
	if err != nil {
		h.log.Error("alerts lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if alerts == nil {
		alerts = []domain.AlertEvent{}
	}
	writeJSON(w, http.StatusOK, alertsResponse{Alerts: alerts, Count: len(alerts)})
}

type historyResponse struct {
	SensorID   string                `json:"sensor_id"`
	Entries    []domain.HistoryEntry `json:"entries"`
	NextBefore *time.Time            `json:"next_before,omitempty"`
}

// HandleHistory returns a page of the sensor's history, newest first.
// Pass before=<RFC3339 timestamp of the last entry> to fetch the next page.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["sensor_id"]

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "before must be an RFC3339 timestamp"})
			return
		}
		before = t
	}

	entries, err := h.store.History(r.Context(), sensorID, limit, before)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "sensor not found"})
		return
	}
	if err != nil {
		h.log.Error("history lookup failed", "sensor_id", sensorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	resp := historyResponse{SensorID: sensorID, Entries: entries}
	if len(entries) == limit {
		last := entries[len(entries)-1].Reading.Timestamp
		resp.NextBefore = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleNetworkSummary returns the network-wide aggregate snapshot.
func (h *Handler) HandleNetworkSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.store.NetworkSummary(r.Context())
	if err != nil {
		h.log.Error("network summary failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
