package server

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader allows any origin: brewd is a local single-operator daemon, and
// tightening this is only worthwhile if it is ever exposed off-box.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWSShot streams per-tick telemetry, phase changes, and completion
// summaries for the active shot.
func (s *Server) handleWSShot(w http.ResponseWriter, r *http.Request) {
	s.serveHub(w, r, s.wsShot)
}

// handleWSHealth streams periodic health snapshots.
func (s *Server) handleWSHealth(w http.ResponseWriter, r *http.Request) {
	s.serveHub(w, r, s.wsHealth)
}

// serveHub upgrades, registers, and then only reads so client disconnects
// are noticed and cleaned up; inbound messages are ignored.
func (s *Server) serveHub(w http.ResponseWriter, r *http.Request, hub *Hub) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := hub.add(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			hub.remove(client)
			return
		}
	}
}
