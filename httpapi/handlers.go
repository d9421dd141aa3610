package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"raffler/domain/entities"
	"raffler/domain/services"
	"raffler/infrastructure"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.status.GetStatus(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to build status")
		respondWithError(w, "failed to load status", http.StatusInternalServerError)
		return
	}
	respondWithData(w, status)
}

func (s *Server) handleWinners(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondWithError(w, "limit must be a number", http.StatusBadRequest)
		return
	}
	winners, err := s.status.GetRecentWinners(r.Context(), limit)
	if err != nil {
		log.WithError(err).Error("Failed to load recent winners")
		respondWithError(w, "failed to load winners", http.StatusInternalServerError)
		return
	}
	if winners == nil {
		winners = []*entities.RecentWinner{}
	}
	respondWithData(w, winners)
}

func (s *Server) handlePhases(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		respondWithError(w, "limit must be a number", http.StatusBadRequest)
		return
	}
	stream, err := s.status.GetPhaseStream(r.Context(), limit)
	if err != nil {
		log.WithError(err).Error("Failed to load phase stream")
		respondWithError(w, "failed to load phases", http.StatusInternalServerError)
		return
	}
	if stream == nil {
		stream = []*entities.PhaseEvent{}
	}
	respondWithData(w, stream)
}

func (s *Server) handleOdds(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		respondWithError(w, "wallet is required", http.StatusBadRequest)
		return
	}
	odds, err := s.status.GetOdds(r.Context(), wallet)
	if err != nil {
		log.WithFields(log.Fields{"wallet": wallet, "error": err}).Warn("Failed to compute odds")
		respondWithError(w, "holder source unavailable", http.StatusBadGateway)
		return
	}
	respondWithData(w, odds)
}

func (s *Server) handleClaimSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.status.GetClaimSummaries(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to summarize claims")
		respondWithError(w, "failed to load claim summary", http.StatusInternalServerError)
		return
	}
	respondWithData(w, summaries)
}

func (s *Server) handleClaimWebhook(w http.ResponseWriter, r *http.Request) {
	if s.opts.WebhookSecret == "" {
		respondWithError(w, "webhook is disabled", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondWithError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !infrastructure.VerifyWebhookSignature(s.opts.WebhookSecret, body, r.Header.Get("X-Signature")) {
		log.WithField("remote", r.RemoteAddr).Warn("Rejected webhook with bad signature")
		respondWithError(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	claims, err := infrastructure.ParseClaimNotifications(body, "webhook")
	if err != nil {
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.claims.Ingest(r.Context(), claims)
	if err != nil {
		log.WithError(err).Error("Failed to ingest webhook claims")
		respondWithError(w, "failed to record claims", http.StatusInternalServerError)
		return
	}
	if result.Admitted > 0 {
		s.runDrawAsync(entities.TriggerClaim)
	}

	writeJSON(w, http.StatusAccepted, Response{Success: true, Message: "claims recorded", Data: result})
}

func (s *Server) handleForceDraw(w http.ResponseWriter, r *http.Request) {
	log.WithField("remote", r.RemoteAddr).Info("Forced draw requested")
	s.runDrawAsync(entities.TriggerForced)
	writeJSON(w, http.StatusAccepted, Response{Success: true, Message: "draw started"})
}

func (s *Server) handleRetryPayout(w http.ResponseWriter, r *http.Request) {
	drawID, err := uuid.Parse(r.URL.Query().Get("drawId"))
	if err != nil {
		respondWithError(w, "drawId must be a uuid", http.StatusBadRequest)
		return
	}

	result, err := s.orchestrator.RetryPayout(r.Context(), drawID)
	switch {
	case errors.Is(err, services.ErrDrawNotFound):
		respondWithError(w, "draw not found", http.StatusNotFound)
		return
	case errors.Is(err, services.ErrDrawNotRetriable), errors.Is(err, services.ErrDrawInProgress):
		respondWithError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		log.WithFields(log.Fields{"drawId": drawID, "error": err}).Error("Payout retry failed")
		respondWithError(w, "payout retry failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "retry finished", Data: result})
}
