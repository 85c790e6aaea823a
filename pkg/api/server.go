// Package api pkg/api/server.go exposes the read-only monitor surface
// to the presentation layer, plus the acknowledge and settings actions.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	httpx "github.com/ondrej1024/m5-minimed-monitor/pkg/http"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

// SnapshotProvider serves the current snapshot; implemented by
// status.Model. Readers never wait on an in-flight fetch.
type SnapshotProvider interface {
	Current() (models.Snapshot, bool)
	IsStale() bool
}

// AlarmController exposes the alarm state and the acknowledge action;
// implemented by alarm.Engine.
type AlarmController interface {
	Current() models.AlarmState
	Acknowledge()
}

// SettingsStore is the persisted key-value collaborator.
type SettingsStore interface {
	Set(key, value string) error
	All() (map[string]string, error)
}

// StatusResponse is the composite payload for GET /api/status.
type StatusResponse struct {
	Snapshot *models.Snapshot   `json:"snapshot,omitempty"`
	Seq      uint64             `json:"seq"`
	Stale    bool               `json:"stale"`
	Alarm    models.AlarmState  `json:"alarm"`
	Units    models.GlucoseUnit `json:"units"`

	// GlucoseMmolL accompanies the mg/dL reading when mmol/L units are
	// configured.
	GlucoseMmolL *float64 `json:"glucose_mmoll,omitempty"`
}

type settingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Server is the HTTP API server. It also implements notify.Sink so
// alarm transitions are pushed to websocket subscribers.
type Server struct {
	snapshots SnapshotProvider
	alarms    AlarmController
	settings  SettingsStore
	units     models.GlucoseUnit

	// onSettingsChange is invoked after a persisted setting is
	// accepted; the wiring layer uses it to restart the polling cycle.
	onSettingsChange func() error

	router   *mux.Router
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*websocket.Conn]struct{}

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithUnits sets the glucose unit reported by /api/status.
func WithUnits(units models.GlucoseUnit) Option {
	return func(s *Server) { s.units = units }
}

// NewServer creates the API server.
func NewServer(snapshots SnapshotProvider, alarms AlarmController, opts ...Option) *Server {
	s := &Server{
		snapshots:   snapshots,
		alarms:      alarms,
		units:       models.UnitMgdL,
		router:      mux.NewRouter(),
		subscribers: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			// The display and the monitor core share a device; no
			// cross-origin surface to protect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(httpx.CommonMiddleware)

	s.router.HandleFunc("/api/status", s.getStatus).Methods("GET")
	s.router.HandleFunc("/api/snapshot", s.getSnapshot).Methods("GET")
	s.router.HandleFunc("/api/alarm", s.getAlarm).Methods("GET")
	s.router.HandleFunc("/api/alarm/ack", s.postAcknowledge).Methods("POST")
	s.router.HandleFunc("/api/alarms/ws", s.serveAlarmSocket).Methods("GET")
	s.router.HandleFunc("/api/settings", s.getSettings).Methods("GET")
	s.router.HandleFunc("/api/settings", s.postSetting).Methods("POST")
}

// EnableSettings wires the settings store and the reconfiguration
// hook. Called after construction so the hook may reference the
// server itself; the settings routes answer 501 until then.
func (s *Server) EnableSettings(store SettingsStore, onChange func() error) {
	s.settings = store
	s.onSettingsChange = onChange
}

// SetUnits changes the glucose unit reported by /api/status, applied
// when a persisted units setting takes effect.
func (s *Server) SetUnits(units models.GlucoseUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.units = units
}

// Router returns the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("Starting HTTP API server on %s", addr)

	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server and closes websocket subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.subscribers {
		_ = conn.Close()
	}
	s.subscribers = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	units := s.units
	s.mu.Unlock()

	resp := StatusResponse{
		Stale: s.snapshots.IsStale(),
		Alarm: s.alarms.Current(),
		Units: units,
	}

	if snap, ok := s.snapshots.Current(); ok {
		resp.Snapshot = &snap
		resp.Seq = snap.Seq

		if units == models.UnitMmolL && snap.Status.Glucose != models.GlucoseUnknown {
			mmol := models.MmolL(snap.Status.Glucose)
			resp.GlucoseMmolL = &mmol
		}
	}

	s.writeJSON(w, &resp)
}

func (s *Server) getSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.snapshots.Current()
	if !ok {
		http.Error(w, "no data yet", http.StatusNotFound)
		return
	}

	s.writeJSON(w, &snap)
}

func (s *Server) getAlarm(w http.ResponseWriter, _ *http.Request) {
	alarm := s.alarms.Current()
	s.writeJSON(w, &alarm)
}

func (s *Server) postAcknowledge(w http.ResponseWriter, _ *http.Request) {
	s.alarms.Acknowledge()

	alarm := s.alarms.Current()
	s.writeJSON(w, &alarm)
}

func (s *Server) getSettings(w http.ResponseWriter, _ *http.Request) {
	if s.settings == nil {
		http.Error(w, "settings store not configured", http.StatusNotImplemented)
		return
	}

	values, err := s.settings.All()
	if err != nil {
		log.Printf("Error reading settings: %v", err)
		http.Error(w, "failed to read settings", http.StatusInternalServerError)

		return
	}

	s.writeJSON(w, values)
}

func (s *Server) postSetting(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		http.Error(w, "settings store not configured", http.StatusNotImplemented)
		return
	}

	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		http.Error(w, "invalid settings payload", http.StatusBadRequest)
		return
	}

	if err := s.settings.Set(req.Key, req.Value); err != nil {
		log.Printf("Error persisting setting %s: %v", req.Key, err)
		http.Error(w, "failed to persist setting", http.StatusInternalServerError)

		return
	}

	if s.onSettingsChange != nil {
		if err := s.onSettingsChange(); err != nil {
			// The value is persisted but rejected by validation; the
			// caller needs to know it did not take effect.
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
