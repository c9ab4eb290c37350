package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"ecowatch/monitor/internal/pipeline"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Sensor dashboards and mobile clients connect from anywhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleStreamSensor upgrades to a websocket scoped to one sensor.
func (h *Handler) HandleStreamSensor(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, mux.Vars(r)["sensor_id"])
}

// HandleStreamAll upgrades to a websocket receiving events for all sensors.
func (h *Handler) HandleStreamAll(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, pipeline.TargetAll)
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, target string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := h.hub.Subscribe(target)
	h.log.Debug("stream opened", "target", target, "subscription_id", sub.ID())

	go h.readPump(conn, sub)
	go h.writePump(conn, sub)
}

// readPump discards inbound frames and detects disconnect. Closing tears
// the subscription down; unsubscribe is idempotent so racing with writePump
// is fine.
func (h *Handler) readPump(conn *websocket.Conn, sub *pipeline.Subscription) {
	defer func() {
		h.hub.Unsubscribe(sub.ID())
		conn.Close()
	}()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the subscription toward the socket, pinging on idle so
// half-dead connections get reaped.
func (h *Handler) writePump(conn *websocket.Conn, sub *pipeline.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.hub.Unsubscribe(sub.ID())
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug("stream write failed", "subscription_id", sub.ID(), "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
