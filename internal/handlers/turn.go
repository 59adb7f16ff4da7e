package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avvvet/council-intake/internal/dialogue"
	"github.com/avvvet/council-intake/internal/memory"
	"github.com/avvvet/council-intake/internal/metrics"
	"github.com/avvvet/council-intake/internal/models"
	"github.com/avvvet/council-intake/internal/prompts"
	"github.com/go-playground/validator/v10"
)

// A turn is applied at most this many times when the session keeps changing underneath it.
const maxTurnAttempts = 2

var errStoreUnavailable = errors.New("session store unavailable")

// TurnHandler is the turn-processing entry point shared by all transports:
// load the session, step the dialogue, write the session back.
type TurnHandler struct {
	store        memory.Store
	orchestrator *dialogue.Orchestrator
	validate     *validator.Validate
	logger       *slog.Logger
	now          func() time.Time
}

func NewTurnHandler(store memory.Store, orchestrator *dialogue.Orchestrator, logger *slog.Logger) *TurnHandler {
	return &TurnHandler{
		store:        store,
		orchestrator: orchestrator,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger,
		now:          time.Now,
	}
}

// ProcessTurn applies one utterance. Failures are reported inside the
// response with an error code; the returned error is reserved for callers
// that cannot build a response at all.
func (h *TurnHandler) ProcessTurn(ctx context.Context, request *models.TurnRequest) (*models.TurnResponse, error) {
	if err := h.validate.Struct(request); err != nil {
		metrics.TurnsTotal.WithLabelValues("", "invalid").Inc()
		return h.createErrorResponse(request, models.ErrorInvalidRequest, err.Error()), nil
	}

	for attempt := 1; attempt <= maxTurnAttempts; attempt++ {
		response, err := h.applyTurn(ctx, request)
		switch {
		case err == nil:
			return response, nil
		case errors.Is(err, memory.ErrConflict):
			metrics.StoreConflicts.Inc()
			h.logger.Warn("session changed during turn, reloading",
				"session_id", request.SessionID,
				"attempt", attempt)
			continue
		case errors.Is(err, errStoreUnavailable):
			metrics.TurnsTotal.WithLabelValues("", "error").Inc()
			h.logger.Error("session store failed", "session_id", request.SessionID, "error", err)
			return h.createErrorResponse(request, models.ErrorStoreFailed, err.Error()), nil
		default:
			metrics.TurnsTotal.WithLabelValues("", "error").Inc()
			h.logger.Error("failed to process turn", "session_id", request.SessionID, "error", err)
			return h.createErrorResponse(request, models.ErrorInternal, err.Error()), nil
		}
	}

	metrics.TurnsTotal.WithLabelValues("", "conflict").Inc()
	h.logger.Warn("giving up on turn after repeated conflicts", "session_id", request.SessionID)

	code := models.ErrorStoreConflict
	message := "session was updated concurrently"
	return &models.TurnResponse{
		SessionID:    request.SessionID,
		Message:      prompts.PleaseRepeatMessage,
		Action:       models.ActionGather,
		ErrorCode:    &code,
		ErrorMessage: &message,
	}, nil
}

func (h *TurnHandler) applyTurn(ctx context.Context, request *models.TurnRequest) (*models.TurnResponse, error) {
	session, err := h.store.Get(ctx, request.SessionID)
	isNew := false
	switch {
	case errors.Is(err, memory.ErrNotFound):
		session = models.NewSession(request.SessionID, request.From, h.now())
		isNew = true
	case err != nil:
		return nil, fmt.Errorf("%w: %w", errStoreUnavailable, err)
	}

	expectedVersion := session.Version

	outcome, err := h.orchestrator.Step(ctx, session, request.Utterance, isNew)
	if err != nil {
		return nil, fmt.Errorf("failed to step session %s: %w", request.SessionID, err)
	}

	if outcome.Changed {
		if _, err := h.store.Put(ctx, outcome.Session, expectedVersion); err != nil {
			if errors.Is(err, memory.ErrConflict) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", errStoreUnavailable, err)
		}
	}

	metrics.TurnsTotal.WithLabelValues(string(outcome.Session.Stage), outcome.Result).Inc()
	h.logger.Info("turn processed",
		"session_id", request.SessionID,
		"stage", outcome.Session.Stage,
		"result", outcome.Result,
		"action", outcome.Action)

	response := &models.TurnResponse{
		SessionID: request.SessionID,
		Message:   outcome.Reply,
		Action:    outcome.Action,
		Stage:     outcome.Session.Stage,
	}
	if outcome.Result == dialogue.ResultPersistFailed {
		code := models.ErrorPersistFailed
		message := dialogue.ErrPersistFailed.Error()
		response.ErrorCode = &code
		response.ErrorMessage = &message
	}
	return response, nil
}

func (h *TurnHandler) createErrorResponse(request *models.TurnRequest, errorCode, errorMessage string) *models.TurnResponse {
	return &models.TurnResponse{
		SessionID:    request.SessionID,
		Message:      prompts.FallbackMessage,
		Action:       models.ActionGather,
		ErrorCode:    &errorCode,
		ErrorMessage: &errorMessage,
	}
}
