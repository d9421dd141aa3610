package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"raffler/application"
	"raffler/domain/entities"
	"raffler/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

const maxWebhookBody = 1 << 20

// ClaimIngester records pushed claims
type ClaimIngester interface {
	Ingest(ctx context.Context, claims []entities.ClaimEvent) (*application.IngestResult, error)
}

// Options configures the API server
type Options struct {
	Addr          string
	AdminToken    string
	WebhookSecret string
}

// Server exposes read models, the claim webhook and admin actions over HTTP
type Server struct {
	status       interfaces.StatusService
	orchestrator interfaces.DrawOrchestrator
	claims       ClaimIngester
	opts         Options

	httpServer *http.Server
	baseCtx    context.Context
	cancel     context.CancelFunc
	background sync.WaitGroup
}

func NewServer(status interfaces.StatusService, orchestrator interfaces.DrawOrchestrator, claims ClaimIngester, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		status:       status,
		orchestrator: orchestrator,
		claims:       claims,
		opts:         opts,
		baseCtx:      ctx,
		cancel:       cancel,
	}
	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Routes builds the request multiplexer
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/winners", s.handleWinners)
	mux.HandleFunc("GET /api/phases", s.handlePhases)
	mux.HandleFunc("GET /api/odds", s.handleOdds)
	mux.HandleFunc("GET /api/claims/summary", s.handleClaimSummary)

	mux.HandleFunc("POST /api/webhook/claims", s.handleClaimWebhook)

	mux.HandleFunc("POST /api/admin/force-draw", s.requireAdmin(s.handleForceDraw))
	mux.HandleFunc("POST /api/admin/retry-payout", s.requireAdmin(s.handleRetryPayout))

	return mux
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		log.Infof("HTTP API listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP API server error: %v", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight background draws
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("Timed out waiting for background draws")
	}
	return err
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminToken == "" {
			respondWithError(w, "admin endpoints are disabled", http.StatusServiceUnavailable)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminToken)) != 1 {
			respondWithError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// runDrawAsync starts a draw that outlives the request
func (s *Server) runDrawAsync(trigger entities.DrawTrigger) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		outcome, err := s.orchestrator.RunDraw(s.baseCtx, trigger)
		if err != nil {
			log.WithFields(log.Fields{
				"trigger": trigger,
				"error":   err,
			}).Error("Background draw failed")
			return
		}
		log.WithFields(log.Fields{
			"trigger": trigger,
			"result":  outcome.Result,
			"reason":  outcome.Reason,
		}).Info("Background draw finished")
	}()
}
