package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/V4T54L/carepulse/internal/adapter/fanout"
	"github.com/V4T54L/carepulse/internal/domain"
)

const (
	subscriberBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

// controlFrame is sent by websocket clients to manage their subscriptions.
type controlFrame struct {
	Action  string            `json:"action"` // subscribe or unsubscribe
	Channel string            `json:"channel"`
	Filter  map[string]string `json:"filter,omitempty"`
}

type controlReply struct {
	Type         string               `json:"type"`
	Subscription *domain.Subscription `json:"subscription,omitempty"`
	Channel      string               `json:"channel,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// StreamHandler attaches websocket and SSE clients to the fan-out hub.
type StreamHandler struct {
	hub       *fanout.Hub
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	heartbeat time.Duration
}

func NewStreamHandler(hub *fanout.Hub, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		logger: logger.With("component", "stream_handler"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		heartbeat: 15 * time.Second,
	}
}

// WebSocket serves GET /ws. Clients send control frames to subscribe and receive
// published messages as text frames.
func (h *StreamHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := fanout.NewBufferedSubscriber(subscriberID(r), subscriberBuffer)
	h.hub.Attach(sub)
	log := h.logger.With("subscriber_id", sub.ID())
	log.Info("Websocket subscriber connected")

	replies := make(chan controlReply, 8)
	done := make(chan struct{})
	go h.writeLoop(conn, sub, replies, done, log)

	defer func() {
		h.hub.Release(sub)
		<-done
		_ = conn.Close()
		log.Info("Websocket subscriber disconnected")
	}()

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame controlFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Websocket read failed", "error", err)
			}
			return
		}
		reply := h.control(sub.ID(), frame)
		select {
		case replies <- reply:
		default:
			log.Warn("Dropping control reply for slow subscriber")
		}
	}
}

func (h *StreamHandler) control(subscriberID string, frame controlFrame) controlReply {
	switch strings.ToLower(frame.Action) {
	case "subscribe":
		s, err := h.hub.Subscribe(subscriberID, frame.Channel, frame.Filter)
		if err != nil {
			return controlReply{Type: "error", Channel: frame.Channel, Error: err.Error()}
		}
		return controlReply{Type: "subscribed", Subscription: &s}
	case "unsubscribe":
		h.hub.Unsubscribe(subscriberID, frame.Channel)
		return controlReply{Type: "unsubscribed", Channel: frame.Channel}
	default:
		return controlReply{Type: "error", Error: fmt.Sprintf("unknown action %q", frame.Action)}
	}
}

// writeLoop is the only writer on conn.
func (h *StreamHandler) writeLoop(conn *websocket.Conn, sub *fanout.BufferedSubscriber, replies <-chan controlReply, done chan<- struct{}, log *slog.Logger) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn("Websocket send failed", "error", err)
				_ = conn.Close()
				return
			}
		case reply := <-replies:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(reply); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

// SSE serves GET /api/v1/stream?channel=alerts&channel=patient:*&type=urgent_alert.created.
// Query parameters other than channel become filter keys.
func (h *StreamHandler) SSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	channels := q["channel"]
	if len(channels) == 0 {
		channels = []string{domain.GlobalChannel}
	}
	var filter map[string]string
	for k, v := range q {
		if k == "channel" || k == "subscriber_id" || len(v) == 0 {
			continue
		}
		if filter == nil {
			filter = make(map[string]string)
		}
		filter[k] = v[0]
	}

	sub := fanout.NewBufferedSubscriber(subscriberID(r), subscriberBuffer)
	h.hub.Attach(sub)
	defer h.hub.Release(sub)
	for _, ch := range channels {
		if _, err := h.hub.Subscribe(sub.ID(), ch, filter); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed %s\n\n", sub.ID())
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			var envelope struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(msg, &envelope)
			if envelope.Type != "" {
				fmt.Fprintf(w, "event: %s\n", envelope.Type)
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// subscriberID honours a client-supplied id so reconnects replace the old connection.
func subscriberID(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("subscriber_id")); id != "" {
		return id
	}
	return uuid.NewString()
}
