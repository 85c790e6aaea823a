// Package api pkg/api/websocket.go pushes alarm transitions to
// websocket subscribers.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

const writeWait = 5 * time.Second

func (s *Server) serveAlarmSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading alarm socket: %v", err)
		return
	}

	s.mu.Lock()
	s.subscribers[conn] = struct{}{}
	s.mu.Unlock()

	// Drain client frames so pings are answered and closes are seen.
	go func() {
		defer s.dropSubscriber(conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) dropSubscriber(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.subscribers, conn)
	s.mu.Unlock()

	_ = conn.Close()
}

// IsEnabled implements notify.Sink.
func (*Server) IsEnabled() bool {
	return true
}

// Notify implements notify.Sink: every alarm transition is broadcast
// to all connected subscribers.
func (s *Server) Notify(_ context.Context, t *models.AlarmTransition) error {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.subscribers))
	for conn := range s.subscribers {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

		if err := conn.WriteJSON(t); err != nil {
			log.Printf("Error writing alarm transition to subscriber: %v", err)
			s.dropSubscriber(conn)
		}
	}

	return nil
}
