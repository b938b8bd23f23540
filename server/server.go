package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/RaghavSood/crosswap/balances"
	"github.com/RaghavSood/crosswap/db"
	"github.com/RaghavSood/crosswap/swaps"
)

// History lists journaled attempts; *db.Store satisfies it.
type History interface {
	ListRecentSwapAttempts(ctx context.Context, limit int64) ([]db.SwapAttempt, error)
}

type Server struct {
	mgr     *swaps.Manager
	book    *balances.Book
	history History
	port    int

	// ctx bounds approvals and executions started over HTTP.
	ctx    context.Context
	router http.Handler
}

// New builds the HTTP API over mgr. book and history may be nil.
func New(mgr *swaps.Manager, book *balances.Book, history History, port int) *Server {
	s := &Server{
		mgr:     mgr,
		book:    book,
		history: history,
		port:    port,
		ctx:     context.Background(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/state", s.handleState)
		api.Get("/status", s.handleStatus)
		api.Get("/allowance", s.handleAllowance)
		api.Get("/balances", s.handleBalances)
		api.Get("/history", s.handleHistory)

		api.Post("/input", s.handleInput)
		api.Post("/input/amount", s.handleInputAmount)
		api.Post("/output", s.handleOutput)
		api.Post("/receiver", s.handleReceiver)
		api.Post("/slippage", s.handleSlippage)
		api.Post("/order", s.handleOrder)
		api.Post("/inverse", s.handleInverse)
		api.Post("/reset", s.handleReset)
		api.Post("/reset/input", s.handleResetInput)
		api.Post("/reset/output", s.handleResetOutput)

		api.Post("/quote", s.handleQuote)
		api.Post("/approve", s.handleApprove)
		api.Post("/execute", s.handleExecute)
	})

	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.ctx = ctx
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("HTTP server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- Reads ---

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.mgr.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attempt":  s.mgr.Executor().CurrentAttempt(),
		"running":  s.mgr.Executor().Running(),
		"stage":    st.Stage,
		"swap":     st.Swap,
		"approval": st.Approval,
	})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	st, err := s.mgr.AllowanceState(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []db.SwapAttempt{})
		return
	}
	attempts, err := s.history.ListRecentSwapAttempts(r.Context(), 50)
	if err != nil {
		log.Printf("server: listing attempts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []db.SwapAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

// --- Configuration commands ---

type tokenRequest struct {
	Token  swaps.Token `json:"token"`
	Amount string      `json:"amount"`
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.mgr.SetInput(req.Token, req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleInputAmount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.mgr.SetInputAmount(req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decode(w, r, &req) {
		return
	}
	s.mgr.SetOutput(req.Token)
	s.handleState(w, r)
}

func (s *Server) handleReceiver(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Address != "" && !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "invalid receiver address")
		return
	}
	s.mgr.SetReceiver(common.HexToAddress(req.Address))
	s.handleState(w, r)
}

func (s *Server) handleSlippage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slippage float64 `json:"slippage"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.mgr.SetSlippage(req.Slippage); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Order string `json:"order"`
	}
	if !decode(w, r, &req) {
		return
	}
	order, err := swaps.ParseRoutePreference(req.Order)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mgr.SetOrder(order)
	s.handleState(w, r)
}

func (s *Server) handleInverse(w http.ResponseWriter, r *http.Request) {
	s.mgr.InverseTokens()
	s.handleState(w, r)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mgr.Reset()
	s.handleState(w, r)
}

func (s *Server) handleResetInput(w http.ResponseWriter, r *http.Request) {
	s.mgr.ResetInput()
	s.handleState(w, r)
}

func (s *Server) handleResetOutput(w http.ResponseWriter, r *http.Request) {
	s.mgr.ResetOutput()
	s.handleState(w, r)
}

// --- Actions ---

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force bool `json:"force"`
	}
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}
	s.mgr.RetrieveExpectedOut(req.Force)
	writeJSON(w, http.StatusAccepted, s.mgr.Snapshot())
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	st, err := s.mgr.AllowanceState(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if st.Sufficient {
		writeJSON(w, http.StatusOK, st)
		return
	}

	go s.mgr.Approve(s.ctx, nil)
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.mgr.Executor().Running() {
		writeEngineError(w, swaps.ErrSwapInProgress)
		return
	}
	q := s.mgr.Store().Quote()
	if q == nil {
		writeEngineError(w, swaps.ErrNoQuote)
		return
	}
	if !q.MatchesRequest(s.mgr.Store().Request()) {
		writeEngineError(w, swaps.ErrStaleQuote)
		return
	}

	go func() {
		if err := s.mgr.ExecuteSwap(s.ctx, nil); err != nil {
			log.Printf("server: execution ended: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, swaps.ErrNoQuote), errors.Is(err, swaps.ErrStaleQuote), errors.Is(err, swaps.ErrSwapInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("server: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
