package http

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"quizdrill-service/internal/app"
)

// WSHandler streams terminal-state events for a session: a client keeping
// the test page open learns immediately when the session was completed (for
// example by a submit from another tab) or frozen after the deadline.
type WSHandler struct {
	service  *app.SessionService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundEvent struct {
	Type    string           `json:"type"`
	Payload app.SessionEvent `json:"payload"`
}

// Watch upgrades the request and forwards session events until the client
// disconnects or the session reaches a terminal state.
func (h *WSHandler) Watch(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	testID, err := strconv.ParseInt(chi.URLParam(r, "testID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "test_not_found")
		return
	}

	events, cancel, err := h.service.Watch(r.Context(), userID, testID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Reader goroutine: its only job is to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundEvent{Type: string(ev.State), Payload: ev}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
			// Terminal states end the stream.
			return
		case <-done:
			return
		}
	}
}
