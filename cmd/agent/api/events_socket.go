package api

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/visiondrive/agent/lib/logger"
)

// HandleEventsSocket streams sync pipeline events to the client until it
// disconnects.
// (GET /events)
func (s *ApiService) HandleEventsSocket(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		log.Error("failed to accept events websocket", "err", err)
		return
	}

	ch, cancel := s.events.Subscribe()
	defer cancel()

	// Drain client frames so pings and close frames are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-clientGone:
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-ch:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Error("failed to encode sync event", "err", err)
				continue
			}
			if err := conn.Write(r.Context(), websocket.MessageText, payload); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}
