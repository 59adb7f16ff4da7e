package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avvvet/council-intake/internal/metrics"
	"github.com/avvvet/council-intake/internal/models"
	"github.com/avvvet/council-intake/internal/notify"
	"github.com/avvvet/council-intake/internal/prompts"
	"github.com/avvvet/council-intake/internal/records"
	"github.com/google/uuid"
)

// ErrPersistFailed means the intake record could not be stored; the dialogue
// must not report the request as submitted.
var ErrPersistFailed = errors.New("intake record could not be persisted")

const (
	defaultCallerName = "Phone Caller"
	notifyTimeout     = 5 * time.Second
)

// Handoff turns a confirmed session into a persisted IntakeRecord and sends
// the optional confirmation notification.
type Handoff struct {
	sink     records.Sink
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewHandoff(sink records.Sink, notifier notify.Notifier, logger *slog.Logger) *Handoff {
	return &Handoff{
		sink:     sink,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Complete persists the record for session and returns its ID. A record that
// already exists for the session is returned as success without notifying again.
func (h *Handoff) Complete(ctx context.Context, session *models.DialogueSession, svc models.ServiceDefinition) (string, error) {
	record := h.buildRecord(session, svc)

	recordID, err := h.sink.Insert(ctx, record)
	switch {
	case errors.Is(err, records.ErrRecordExists):
		metrics.RecordsTotal.WithLabelValues("duplicate").Inc()
		h.logger.Info("intake record already stored", "session_id", session.SessionID, "record_id", recordID)
		return recordID, nil
	case err != nil:
		metrics.RecordsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	metrics.RecordsTotal.WithLabelValues("created").Inc()
	h.logger.Info("intake record stored",
		"session_id", session.SessionID,
		"record_id", recordID,
		"service_id", svc.ID,
		"priority", svc.Priority)

	h.notify(ctx, record, svc, recordID)
	return recordID, nil
}

func (h *Handoff) buildRecord(session *models.DialogueSession, svc models.ServiceDefinition) *models.IntakeRecord {
	data := make(map[string]string, len(session.CollectedData))
	for k, v := range session.CollectedData {
		data[k] = v
	}

	name := firstValueOfType(svc, data, models.FieldName)
	if name == "" {
		name = defaultCallerName
	}

	return &models.IntakeRecord{
		ID:            h.newID(),
		SessionID:     session.SessionID,
		CallerAddress: session.OriginatingAddress,
		ResidentName:  name,
		ResidentEmail: firstValueOfType(svc, data, models.FieldEmail),
		ServiceID:     svc.ID,
		ServiceName:   svc.Name,
		Priority:      svc.Priority,
		Status:        models.RecordPending,
		CollectedData: data,
		Transcript:    append([]models.Turn(nil), session.History...),
		CreatedAt:     h.now(),
	}
}

// notify is best effort: failures are logged and counted, never returned.
func (h *Handoff) notify(ctx context.Context, record *models.IntakeRecord, svc models.ServiceDefinition, recordID string) {
	if record.ResidentEmail == "" || h.notifier == nil {
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return
	}

	name := firstValueOfType(svc, record.CollectedData, models.FieldName)
	subject, body := notify.ConfirmationEmail(record, svc, prompts.Reference(recordID), name)

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := h.notifier.Send(ctx, record.ResidentEmail, subject, body); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		h.logger.Warn("confirmation notification failed",
			"session_id", record.SessionID,
			"record_id", recordID,
			"error", err)
		return
	}

	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	h.logger.Info("confirmation notification sent", "session_id", record.SessionID, "record_id", recordID)
}

// firstValueOfType finds the first collected value, in field order, whose field has type t.
func firstValueOfType(svc models.ServiceDefinition, data map[string]string, t models.FieldType) string {
	for _, f := range svc.Fields {
		if f.Type != t {
			continue
		}
		if v := data[f.ID]; v != "" {
			return v
		}
	}
	return ""
}
