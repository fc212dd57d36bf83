package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bapu077/quantstream-dashboard/internal/alert"
	"github.com/bapu077/quantstream-dashboard/internal/config"
	"github.com/bapu077/quantstream-dashboard/internal/ledger"
)

// APIServer exposes the engine's command/query surface over HTTP/JSON, plus
// the WebSocket tick stream and Prometheus metrics.
type APIServer struct {
	server *http.Server
	engine *Engine
	stream *Stream
	cfg    *config.Config
	logger *zap.Logger
}

// NewAPIServer creates the HTTP server for the given engine. The stream is
// wired as the engine's update handler.
func NewAPIServer(e *Engine, stream *Stream, cfg *config.Config, gatherer prometheus.Gatherer, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: e,
		stream: stream,
		cfg:    cfg,
		logger: logger.Named("api-server"),
	}

	mux := http.NewServeMux()

	// Queries
	mux.HandleFunc("GET /api/market", s.marketHandler)
	mux.HandleFunc("GET /api/replay", s.replayHandler)
	mux.HandleFunc("GET /api/alerts", s.alertsHandler)
	mux.HandleFunc("GET /api/ledger", s.ledgerHandler)
	mux.HandleFunc("GET /api/trades", s.tradesHandler)
	mux.HandleFunc("GET /health", s.healthHandler)

	// Commands
	mux.HandleFunc("POST /api/alerts", s.addAlertHandler)
	mux.HandleFunc("POST /api/mode", s.setModeHandler)
	mux.HandleFunc("POST /api/replay/playback", s.togglePlaybackHandler)
	mux.HandleFunc("POST /api/replay/speed", s.setSpeedHandler)
	mux.HandleFunc("POST /api/replay/reset", s.resetReplayHandler)
	mux.HandleFunc("POST /api/trade/buy", s.buyHandler)
	mux.HandleFunc("POST /api/trade/sell", s.sellHandler)
	mux.HandleFunc("POST /api/indicators", s.setIndicatorsHandler)

	// Stream and metrics
	mux.HandleFunc("GET /ws", stream.HandleWS)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server and disconnects stream clients.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	s.stream.CloseAll()
	return s.server.Shutdown(ctx)
}

// --- query handlers ---------------------------------------------------------

func (s *APIServer) marketHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Market())
}

func (s *APIServer) replayHandler(w http.ResponseWriter, r *http.Request) {
	mode, replay := s.engine.Replay()
	s.writeJSON(w, http.StatusOK, replayResponse{Mode: mode, Replay: replay})
}

func (s *APIServer) alertsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Alerts())
}

func (s *APIServer) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Ledger())
}

func (s *APIServer) tradesHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Trades())
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// --- command handlers -------------------------------------------------------

type replayResponse struct {
	Mode   Mode        `json:"mode"`
	Replay ReplayState `json:"replay"`
}

type addAlertRequest struct {
	Type      alert.Type `json:"type"`
	Threshold *float64   `json:"threshold"`
}

func (s *APIServer) addAlertHandler(w http.ResponseWriter, r *http.Request) {
	var req addAlertRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Threshold == nil {
		s.writeError(w, http.StatusBadRequest, "threshold is required and must be numeric")
		return
	}
	a, err := s.engine.AddAlert(req.Type, *req.Threshold)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, a)
}

type setModeRequest struct {
	Mode Mode `json:"mode"`
}

func (s *APIServer) setModeHandler(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.SetMode(req.Mode); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, replay := s.engine.Replay()
	s.writeJSON(w, http.StatusOK, replayResponse{Mode: mode, Replay: replay})
}

func (s *APIServer) togglePlaybackHandler(w http.ResponseWriter, r *http.Request) {
	replay := s.engine.TogglePlayback()
	mode, _ := s.engine.Replay()
	s.writeJSON(w, http.StatusOK, replayResponse{Mode: mode, Replay: replay})
}

type setSpeedRequest struct {
	Speed *int `json:"speed"`
}

func (s *APIServer) setSpeedHandler(w http.ResponseWriter, r *http.Request) {
	var req setSpeedRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Speed == nil || !s.allowedSpeed(*req.Speed) {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("speed must be one of %v", s.cfg.Replay.Speeds))
		return
	}
	if err := s.engine.SetSpeed(*req.Speed); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, replay := s.engine.Replay()
	s.writeJSON(w, http.StatusOK, replayResponse{Mode: mode, Replay: replay})
}

func (s *APIServer) resetReplayHandler(w http.ResponseWriter, r *http.Request) {
	s.engine.ResetReplay()
	mode, replay := s.engine.Replay()
	s.writeJSON(w, http.StatusOK, replayResponse{Mode: mode, Replay: replay})
}

type tradeRequest struct {
	Quantity *float64 `json:"quantity"`
}

func (s *APIServer) buyHandler(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.engine.Buy)
}

func (s *APIServer) sellHandler(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, s.engine.Sell)
}

func (s *APIServer) handleTrade(w http.ResponseWriter, r *http.Request,
	exec func(context.Context, decimal.Decimal) (ledger.Trade, error)) {

	var req tradeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		s.writeError(w, http.StatusBadRequest, "quantity is required and must be numeric")
		return
	}
	trade, err := exec(r.Context(), decimal.NewFromFloat(*req.Quantity))
	if err != nil {
		// Expected rejections: state unchanged, cause reported.
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, trade)
}

type setIndicatorsRequest struct {
	Visible *bool `json:"visible"`
}

func (s *APIServer) setIndicatorsHandler(w http.ResponseWriter, r *http.Request) {
	var req setIndicatorsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Visible == nil {
		s.writeError(w, http.StatusBadRequest, "visible is required")
		return
	}
	s.engine.SetIndicatorVisibility(*req.Visible)
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ----------------------------------------------------------------

func (s *APIServer) allowedSpeed(speed int) bool {
	for _, v := range s.cfg.Replay.Speeds {
		if v == speed {
			return true
		}
	}
	return false
}

// decode parses the JSON body, rejecting malformed input at the boundary
// before it can reach the core.
func (s *APIServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
