package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/gorilla/websocket"
)

// log is this package's sub-logger.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by Dashboard.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Event is one observability-worthy occurrence in the broadcast/reply
// engine, pushed to every connected dashboard client as JSON.
type Event struct {
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	Topic  string    `json:"topic,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Dashboard is a minimal websocket event hub: http.Handler accepts
// connections, Publish fans an Event out to every connected client. No
// history is kept; a client only sees events published after it connects.
type Dashboard struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewDashboard constructs an empty Dashboard.
func NewDashboard() *Dashboard {
	return &Dashboard{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers it as an event sink until
// it closes or errors.
func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("dashboard: upgrade failed: %v", err)
		return
	}

	d.mu.Lock()
	d.clients[conn] = struct{}{}
	d.mu.Unlock()

	// Drain and discard anything the client sends; we only use this
	// connection in the outbound direction, but a reader is required to
	// notice the client going away (gorilla/websocket's documented close
	// detection idiom).
	go func() {
		defer d.remove(conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (d *Dashboard) remove(conn *websocket.Conn) {
	d.mu.Lock()
	delete(d.clients, conn)
	d.mu.Unlock()

	conn.Close()
}

// Publish sends ev to every currently connected client, dropping any
// connection that fails to accept the write.
func (d *Dashboard) Publish(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("dashboard: marshal event: %v", err)
		return
	}

	d.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(d.clients))
	for c := range d.clients {
		conns = append(conns, c)
	}
	d.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, body); err != nil {
			d.remove(c)
		}
	}
}
