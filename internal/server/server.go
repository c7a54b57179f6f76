package server

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avrdash/avrdash/internal/avr"
	"github.com/avrdash/avrdash/internal/statelog"
	"github.com/gorilla/websocket"
)

// Server exposes the receiver driver to WebSocket dashboard clients and a
// small HTTP API: state broadcast out, zone commands in.
type Server struct {
	cfg      *Config
	driver   *avr.Driver
	webFS    fs.FS
	stateLog *statelog.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Zones  map[string]avr.ZoneState `json:"zones,omitempty"`
	Config *Config                  `json:"config,omitempty"`
	Stamp  int64                    `json:"stamp"` // Unix ms
}

// New creates a new Server. It subscribes to the driver's notification bus:
// every decoded state change is recorded to the state log and pushed to
// connected clients.
func New(cfg *Config, driver *avr.Driver, webFS fs.FS) *Server {
	s := &Server{
		cfg:    cfg,
		driver: driver,
		webFS:  webFS,
		stateLog: statelog.New(statelog.Config{
			Enabled: cfg.Logging.Enabled,
			Path:    cfg.Logging.Path,
		}),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	driver.Bus().Subscribe(func(ev avr.Event) {
		s.stateLog.Record(ev)
		s.broadcast(s.stateFrame())
	})
	return s
}

// routes builds the HTTP mux. Factored out of Run so tests can exercise the
// handlers without binding a listener.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Embedded dashboard page
	mux.Handle("/", http.FileServer(http.FS(s.webFS)))

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWS)

	// Zone state + commands
	mux.HandleFunc("/api/zones", s.handleZones)
	mux.HandleFunc("/api/zones/", s.handleZoneCommand)

	// Config API
	mux.HandleFunc("/api/config", s.handleConfig)

	return mux
}

// Run starts the HTTP server and the periodic state refresh.
func (s *Server) Run(ctx context.Context) error {
	go s.refreshLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.routes(),
	}

	go func() {
		<-ctx.Done()
		s.stateLog.Close()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	return srv.ListenAndServe()
}

// refreshLoop issues the startup state queries, then re-queries every zone
// at the configured interval so the cache stays honest even if an
// unsolicited notification was dropped as line noise.
func (s *Server) refreshLoop(ctx context.Context) {
	refresh := time.Duration(s.cfg.Receiver.RefreshSec) * time.Second
	if refresh <= 0 {
		refresh = 30 * time.Second
	}

	update := func() {
		for _, z := range s.driver.Zones() {
			z.Update()
		}
	}
	update()

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

func (s *Server) stateFrame() Frame {
	zones := make(map[string]avr.ZoneState)
	for _, z := range s.driver.Zones() {
		zones[z.Name()] = z.State()
	}
	return Frame{Zones: zones, Stamp: time.Now().UnixMilli()}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", total)

	// Send current zone states immediately
	frame := s.stateFrame()
	frame.Config = s.cfg
	if data, err := json.Marshal(frame); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / keep-alive)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			total := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", total)
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	data, err := json.Marshal(s.stateFrame())
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// zoneCommand is the request body for POST /api/zones/{zone}/{action}.
type zoneCommand struct {
	On    bool   `json:"on"`    // power, mute
	Level int    `json:"level"` // volume
	Name  string `json:"name"`  // source
}

func (s *Server) handleZoneCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/zones/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		http.Error(w, "expected /api/zones/{zone}/{action}", 404)
		return
	}
	zoneName, action := parts[0], parts[1]

	zone, err := s.driver.Zone(zoneName)
	if err != nil {
		http.Error(w, err.Error(), 404)
		return
	}

	var cmd zoneCommand
	if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &cmd); err != nil {
			http.Error(w, "bad request body", 400)
			return
		}
	}

	switch action {
	case "power":
		if cmd.On {
			zone.PowerOn()
		} else {
			zone.PowerOff()
		}
	case "mute":
		if cmd.On {
			zone.MuteOn()
		} else {
			zone.MuteOff()
		}
	case "volume":
		zone.SetVolume(cmd.Level)
	case "source":
		zone.SetSource(cmd.Name)
	case "update":
		zone.Update()
	default:
		http.Error(w, "unknown action", 404)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		s.stateLog.SetEnabled(s.cfg.Logging.Enabled)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
