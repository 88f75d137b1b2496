package handlers

import (
	"net/http"
	"reflect"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kitkwok/tightzone/internal/refresh"
	"github.com/kitkwok/tightzone/pkg/logger"
)

const (
	streamPollInterval = 500 * time.Millisecond
	streamWriteWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler pushes refresh status over a websocket
type StreamHandler struct {
	refresher Refresher
	interval  time.Duration
	logger    *logger.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(refresher Refresher, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		refresher: refresher,
		interval:  streamPollInterval,
		logger:    log,
	}
}

// Stream sends the status immediately and again whenever it changes,
// then closes once the run is no longer in progress.
// GET /api/refresh/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()
	// the server's read timeout still applies to the hijacked connection
	_ = conn.SetReadDeadline(time.Time{})

	// reader: notices client close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last *refresh.Status
	for {
		st := h.refresher.Status()
		if last == nil || !sameStatus(*last, st) {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(st); err != nil {
				return
			}
			last = &st
		}

		if !st.Running() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(st.Phase)),
				time.Now().Add(streamWriteWait))
			return
		}

		select {
		case <-ticker.C:
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func sameStatus(a, b refresh.Status) bool {
	return reflect.DeepEqual(a, b)
}
