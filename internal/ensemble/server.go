package ensemble

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// HistoryWriter receives every served prediction for audit storage. A nil
// writer disables history recording.
type HistoryWriter interface {
	StorePrediction(EnsemblePrediction) error
}

// Server exposes the manager over HTTP: POST /predict, GET /rankings,
// GET /health, GET /metrics, and a /ws stream that pushes every served
// prediction to connected subscribers.
type Server struct {
	manager  *Manager
	history  HistoryWriter
	metrics  http.Handler
	server   *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// PredictRequest is the incoming prediction request body.
type PredictRequest struct {
	Components []PredictionComponent `json:"components"`
	Strategy   string                `json:"strategy,omitempty"`
	RequestID  string                `json:"request_id,omitempty"`
}

// PredictResponse wraps the prediction with request bookkeeping.
type PredictResponse struct {
	Prediction EnsemblePrediction `json:"prediction"`
	RequestID  string             `json:"request_id,omitempty"`
	LatencyMs  float64            `json:"latency_ms"`
	Timestamp  time.Time          `json:"timestamp"`
}

// NewServer creates the HTTP server. metricsHandler is mounted at /metrics
// (pass promhttp.Handler()); history may be nil.
func NewServer(manager *Manager, history HistoryWriter, metricsHandler http.Handler, port int) *Server {
	s := &Server{
		manager: manager,
		history: history,
		metrics: metricsHandler,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/predict", s.handlePredict)
	mux.HandleFunc("/rankings", s.handleRankings)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins serving HTTP requests and blocks until shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting prediction server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and closes all websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.mu.Unlock()
	return s.server.Shutdown(ctx)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Components) == 0 {
		http.Error(w, "components cannot be empty", http.StatusBadRequest)
		return
	}

	// Re-clamp producer-supplied confidences; external callers are not
	// obliged to have used NewComponent.
	for i := range req.Components {
		req.Components[i].Confidence = clamp(req.Components[i].Confidence, 0, 1)
	}

	pred, err := s.manager.Predict(req.Components, req.Strategy)
	if err != nil {
		log.Error().Err(err).Msg("prediction failed")
		http.Error(w, fmt.Sprintf("prediction failed: %v", err), http.StatusInternalServerError)
		return
	}

	if s.history != nil {
		if err := s.history.StorePrediction(pred); err != nil {
			log.Warn().Err(err).Msg("failed to record prediction history")
		}
	}
	s.broadcast(pred)

	resp := PredictResponse{
		Prediction: pred,
		RequestID:  req.RequestID,
		LatencyMs:  float64(time.Since(start).Milliseconds()),
		Timestamp:  time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"trained":  s.manager.IsTrained(),
		"best":     s.manager.Best(),
		"rankings": s.manager.Rankings(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"trained":    s.manager.IsTrained(),
		"strategies": s.manager.Strategies(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("websocket client connected")

	// Reader loop only to detect disconnects; the stream is one-way.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) broadcast(pred EnsemblePrediction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		if err := conn.WriteJSON(pred); err != nil {
			log.Debug().Err(err).Msg("dropping stalled websocket client")
			conn.Close()
			delete(s.clients, conn)
		}
	}
}
