package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/avvvet/council-intake/internal/config"
	"github.com/avvvet/council-intake/internal/models"
	"github.com/avvvet/council-intake/internal/prompts"
	"github.com/nats-io/nats.go"
)

// TurnProcessor applies one turn. Implemented by handlers.TurnHandler.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, request *models.TurnRequest) (*models.TurnResponse, error)
}

// Connect dials NATS with the service's reconnect policy.
func Connect(cfg *config.Config, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name(cfg.ServiceName),
		nats.Timeout(cfg.NatsTimeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS server", "url", cfg.NatsURL)
	return conn, nil
}

// NATSTransport serves turns as JSON request/reply. Instances share the
// subject through a queue group.
type NATSTransport struct {
	conn        *nats.Conn
	subject     string
	queue       string
	turnTimeout time.Duration
	handler     TurnProcessor
	logger      *slog.Logger
	sub         *nats.Subscription
}

func NewNATSTransport(conn *nats.Conn, cfg *config.Config, handler TurnProcessor, logger *slog.Logger) *NATSTransport {
	return &NATSTransport{
		conn:        conn,
		subject:     cfg.NatsTurnSubject,
		queue:       cfg.NatsQueueGroup,
		turnTimeout: cfg.TurnTimeout,
		handler:     handler,
		logger:      logger,
	}
}

func (nt *NATSTransport) Start() error {
	sub, err := nt.conn.QueueSubscribe(nt.subject, nt.queue, nt.handleTurnRequest)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", nt.subject, err)
	}
	nt.sub = sub

	nt.logger.Info("subscribed to turn subject", "subject", nt.subject, "queue", nt.queue)
	return nil
}

func (nt *NATSTransport) handleTurnRequest(msg *nats.Msg) {
	var request models.TurnRequest
	if err := json.Unmarshal(msg.Data, &request); err != nil {
		nt.logger.Warn("error parsing turn request", "error", err)
		nt.sendErrorResponse(msg, &request, models.ErrorInvalidRequest, "Invalid request format")
		return
	}

	nt.logger.Debug("processing turn request", "session_id", request.SessionID)

	ctx, cancel := context.WithTimeout(context.Background(), nt.turnTimeout)
	defer cancel()

	response, err := nt.handler.ProcessTurn(ctx, &request)
	if err != nil {
		nt.logger.Error("error processing turn", "session_id", request.SessionID, "error", err)
		nt.sendErrorResponse(msg, &request, models.ErrorInternal, err.Error())
		return
	}

	if err := nt.sendResponse(msg, response); err != nil {
		nt.logger.Error("error sending response", "session_id", request.SessionID, "error", err)
	}
}

func (nt *NATSTransport) sendResponse(msg *nats.Msg, response *models.TurnResponse) error {
	responseData, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if err := msg.Respond(responseData); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	nt.logger.Debug("response sent", "session_id", response.SessionID, "stage", response.Stage, "action", response.Action)
	return nil
}

func (nt *NATSTransport) sendErrorResponse(msg *nats.Msg, request *models.TurnRequest, errorCode, errorMessage string) {
	response := errorResponse(request.SessionID, errorCode, errorMessage)
	if err := nt.sendResponse(msg, response); err != nil {
		nt.logger.Error("failed to send error response", "error", err)
	}
}

// drainGrace is added to the turn timeout when waiting for a drain.
const drainGrace = 2 * time.Second

// Close drains the subscription and waits until the in-flight turn has
// replied, so the connection can be closed safely afterwards.
func (nt *NATSTransport) Close() error {
	if nt.sub == nil {
		return nil
	}
	if err := nt.sub.Drain(); err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}

	deadline := time.Now().Add(nt.turnTimeout + drainGrace)
	for nt.sub.IsValid() {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out draining subscription to %s", nt.subject)
		}
		time.Sleep(10 * time.Millisecond)
	}
	nt.logger.Info("NATS subscription drained", "subject", nt.subject)
	return nil
}

func errorResponse(sessionID, errorCode, errorMessage string) *models.TurnResponse {
	return &models.TurnResponse{
		SessionID:    sessionID,
		Message:      prompts.ProcessingErrorMessage,
		Action:       models.ActionGather,
		ErrorCode:    &errorCode,
		ErrorMessage: &errorMessage,
	}
}
