// Package server exposes the controller telemetry over HTTP and a websocket
// push channel for external visualizers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chakramx/chakram/internal/config"
	"github.com/chakramx/chakram/internal/controller"
	"github.com/chakramx/chakram/internal/event"
	"github.com/chakramx/chakram/internal/sector"
)

// Controller is the part of the controller the server may touch.
type Controller interface {
	Snapshot() controller.Snapshot
	Classifier() *sector.Classifier
	Reload(cfg *config.Config)
}

// sectorView is the layout a visualizer needs to draw one sector.
type sectorView struct {
	Name   sector.Name `json:"name"`
	Start  float64     `json:"start"`
	End    float64     `json:"end"`
	Center float64     `json:"center"`
}

func newSectorView(d sector.Def) sectorView {
	return sectorView{Name: d.Name, Start: d.Start, End: d.End, Center: d.Center()}
}

// LoadFunc reads the configuration from wherever it was loaded at startup.
type LoadFunc func() (*config.Config, error)

type HttpServer struct {
	logger       *slog.Logger
	ctrl         Controller
	load         LoadFunc
	pushInterval time.Duration
	wsServer     *WebSocketServer
	server       *http.Server
}

// Message is the envelope of everything pushed over the websocket.
type Message struct {
	Type    string    `json:"type"`
	Kind    string    `json:"kind,omitempty"`
	ID      string    `json:"id,omitempty"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data"`
}

func New(logger *slog.Logger, ctrl Controller, load LoadFunc, pushInterval time.Duration) *HttpServer {
	if pushInterval <= 0 {
		pushInterval = 50 * time.Millisecond
	}
	return &HttpServer{
		logger:       logger,
		ctrl:         ctrl,
		load:         load,
		pushInterval: pushInterval,
		wsServer:     NewWebSocketServer(logger),
	}
}

func (s *HttpServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snapshot", s.snapshot)
	mux.HandleFunc("GET /api/sectors", s.sectors)
	mux.HandleFunc("GET /api/sectors/{name}", s.sectorByName)
	mux.HandleFunc("POST /api/reload-config", s.reloadConfig)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Listen serves until ctx is done or the listener fails.
func (s *HttpServer) Listen(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.wsServer.Run(ctx)
	go s.BroadcastStatus(ctx)
	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Warn("Error stopping telemetry server", slog.Any("error", err))
		}
	}()

	s.logger.Info("Telemetry server listening", slog.Int("port", port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HttpServer) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// BroadcastStatus pushes the latest snapshot to every websocket client each
// push interval.
func (s *HttpServer) BroadcastStatus(ctx context.Context) {
	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := s.snapshotMessage()
			if err != nil {
				s.logger.Error("Failed to marshal snapshot", slog.Any("error", err))
				continue
			}
			s.wsServer.Broadcast(data)
		}
	}
}

// HandleEvent forwards controller events to the websocket clients. It is
// registered on the event listener.
func (s *HttpServer) HandleEvent(_ context.Context, e event.Event) error {
	data, err := json.Marshal(Message{
		Type:    "event",
		Kind:    e.Kind(),
		ID:      e.ID().String(),
		Message: e.Message(),
		Time:    e.OccurredAt(),
		Data:    e,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Kind(), err)
	}
	s.wsServer.Broadcast(data)
	return nil
}

func (s *HttpServer) snapshotMessage() ([]byte, error) {
	snap := s.ctrl.Snapshot()
	return json.Marshal(Message{Type: "snapshot", Time: snap.Time, Data: snap})
}

func (s *HttpServer) snapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.ctrl.Snapshot()); err != nil {
		s.logger.Warn("Failed to write snapshot", slog.Any("error", err))
	}
}

func (s *HttpServer) sectors(w http.ResponseWriter, r *http.Request) {
	defs := s.ctrl.Classifier().Defs()
	views := make([]sectorView, 0, len(defs))
	for _, d := range defs {
		views = append(views, newSectorView(d))
	}
	s.writeJSON(w, views)
}

func (s *HttpServer) sectorByName(w http.ResponseWriter, r *http.Request) {
	d, ok := s.ctrl.Classifier().Lookup(sector.Name(r.PathValue("name")))
	if !ok {
		http.Error(w, "unknown sector", http.StatusNotFound)
		return
	}
	s.writeJSON(w, newSectorView(d))
}

func (s *HttpServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", slog.Any("error", err))
	}
}

func (s *HttpServer) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if s.load == nil {
		http.Error(w, "reload is not available", http.StatusNotImplemented)
		return
	}
	cfg, err := s.load()
	if err != nil {
		s.logger.Error("Config reload rejected", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.ctrl.Reload(cfg)

	s.logger.Info("Config reload scheduled")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

func (s *HttpServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	initial, err := s.snapshotMessage()
	if err != nil {
		http.Error(w, "Failed to serialize snapshot", http.StatusInternalServerError)
		return
	}
	s.wsServer.HandleWebSocket(w, r, initial)
}
