// Package dialogue implements the intake state machine: given a session and
// one utterance it decides the reply and the next session state.
//
// Stages advance service_selection -> information_gathering -> confirmation
// -> completed. Fields are collected one at a time at the session cursor.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avvvet/council-intake/internal/catalog"
	"github.com/avvvet/council-intake/internal/llm"
	"github.com/avvvet/council-intake/internal/models"
	"github.com/avvvet/council-intake/internal/prompts"
)

// Turn results, also used as the metrics outcome label.
const (
	ResultPrimed        = "primed"
	ResultAdvanced      = "advanced"
	ResultReprompt      = "reprompt"
	ResultCompleted     = "completed"
	ResultEscalated     = "escalated"
	ResultPersistFailed = "persist_failed"
	ResultNoop          = "noop"
)

type Config struct {
	// CallTimeout bounds each classifier, extractor and interpreter call.
	CallTimeout time.Duration
	// MaxFieldAttempts is how many invalid answers a field tolerates before
	// it is skipped (optional) or the call is escalated to staff (required).
	MaxFieldAttempts int
}

// Outcome is the result of one Step.
type Outcome struct {
	Session *models.DialogueSession
	Reply   string
	Action  string // models.ActionGather or models.ActionHangup
	Result  string
	// Changed is false when the session must not be written back.
	Changed bool
}

// Orchestrator holds no per-session state and is safe for concurrent use.
type Orchestrator struct {
	catalog *catalog.Catalog
	nlu     llm.Collaborators
	handoff *Handoff
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func NewOrchestrator(cat *catalog.Catalog, nlu llm.Collaborators, handoff *Handoff, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MaxFieldAttempts < 1 {
		cfg.MaxFieldAttempts = 1
	}
	return &Orchestrator{
		catalog: cat,
		nlu:     nlu,
		handoff: handoff,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Step applies one utterance to a checked-out copy of session. isNew marks a
// session that was just created for this turn.
func (o *Orchestrator) Step(ctx context.Context, session *models.DialogueSession, utterance string, isNew bool) (*Outcome, error) {
	s := session.Clone()

	switch {
	case s.Stage == models.StageCompleted:
		return o.completed(s)
	case s.Escalated:
		return &Outcome{Session: s, Reply: prompts.EscalationMessage, Action: models.ActionHangup, Result: ResultNoop}, nil
	case isNew && strings.TrimSpace(utterance) == "":
		// First contact with nothing said yet: greet without calling any collaborator.
		return o.reply(s, prompts.Welcome(o.catalog.List()), models.ActionGather, ResultPrimed), nil
	}

	s.AddTurn(models.RoleUser, utterance, o.now())

	switch s.Stage {
	case models.StageServiceSelection:
		return o.selectService(ctx, s, utterance), nil
	case models.StageInformationGathering:
		return o.gatherField(ctx, s, utterance)
	case models.StageConfirmation:
		return o.confirm(ctx, s, utterance)
	}
	return nil, fmt.Errorf("session %s has unknown stage %q", s.SessionID, s.Stage)
}

func (o *Orchestrator) selectService(ctx context.Context, s *models.DialogueSession, utterance string) *Outcome {
	var serviceID string
	err := o.bounded(ctx, "classify", func(ctx context.Context) error {
		var err error
		serviceID, err = o.nlu.Classify(ctx, utterance, o.catalog.List())
		return err
	})
	if err != nil {
		o.logger.Warn("service classification unavailable", "session_id", s.SessionID, "error", err)
	}

	svc, ok := o.catalog.Get(serviceID)
	if err != nil || !ok {
		if err == nil && serviceID != "" {
			o.logger.Info("classifier returned unknown service", "session_id", s.SessionID, "service_id", serviceID)
		}
		return o.reply(s, prompts.UnrecognizedService(o.catalog.List()), models.ActionGather, ResultReprompt)
	}

	s.ServiceID = svc.ID
	s.Stage = models.StageInformationGathering
	s.Cursor = 0
	s.Attempts = 0
	s.CollectedData = make(map[string]string)

	o.logger.Info("service selected", "session_id", s.SessionID, "service_id", svc.ID)
	return o.reply(s, prompts.ServiceSelected(svc), models.ActionGather, ResultAdvanced)
}

func (o *Orchestrator) gatherField(ctx context.Context, s *models.DialogueSession, utterance string) (*Outcome, error) {
	svc, err := o.service(s)
	if err != nil {
		return nil, err
	}

	if s.Cursor < 0 || s.Cursor >= len(svc.Fields) {
		// Sessions written before the decline reset could sit past the last field.
		o.logger.Warn("cursor out of range, restarting collection", "session_id", s.SessionID, "cursor", s.Cursor)
		s.Cursor = 0
		s.Attempts = 0
	}
	field := svc.Fields[s.Cursor]

	result := o.extractField(ctx, utterance, field)
	switch result.status {
	case extractValid:
		s.CollectedData[field.ID] = result.value
		return o.advance(s, svc, ""), nil

	case extractSkipped:
		delete(s.CollectedData, field.ID)
		return o.advance(s, svc, ""), nil

	case extractUnavailable:
		return o.reply(s, prompts.CollaboratorUnavailable(&field), models.ActionGather, ResultReprompt), nil
	}

	s.Attempts++
	if s.Attempts < o.cfg.MaxFieldAttempts {
		return o.reply(s, prompts.RepromptField(field), models.ActionGather, ResultReprompt), nil
	}

	if !field.Required {
		o.logger.Info("skipping optional field after repeated invalid answers", "session_id", s.SessionID, "field", field.ID)
		delete(s.CollectedData, field.ID)
		return o.advance(s, svc, "Let's move on."), nil
	}

	s.Escalated = true
	o.logger.Warn("escalating session after repeated invalid answers",
		"session_id", s.SessionID,
		"service_id", svc.ID,
		"field", field.ID,
		"attempts", s.Attempts)
	return o.reply(s, prompts.EscalationMessage, models.ActionHangup, ResultEscalated), nil
}

// advance moves the cursor past the current field, entering confirmation
// after the last one.
func (o *Orchestrator) advance(s *models.DialogueSession, svc models.ServiceDefinition, lead string) *Outcome {
	s.Cursor++
	s.Attempts = 0

	var reply string
	if s.Cursor >= len(svc.Fields) {
		s.Cursor = len(svc.Fields)
		s.Stage = models.StageConfirmation
		reply = prompts.Summary(svc, s.CollectedData)
	} else {
		reply = prompts.NextField(svc.Fields[s.Cursor])
	}
	if lead != "" {
		reply = lead + " " + reply
	}
	return o.reply(s, reply, models.ActionGather, ResultAdvanced)
}

func (o *Orchestrator) confirm(ctx context.Context, s *models.DialogueSession, utterance string) (*Outcome, error) {
	svc, err := o.service(s)
	if err != nil {
		return nil, err
	}

	var affirmed bool
	err = o.bounded(ctx, "confirm", func(ctx context.Context) error {
		var err error
		affirmed, err = o.nlu.Confirm(ctx, utterance)
		return err
	})
	if err != nil {
		if !errors.Is(err, llm.ErrInvalidInput) {
			o.logger.Warn("confirmation interpreter unavailable", "session_id", s.SessionID, "error", err)
		}
		return o.reply(s, prompts.AskConfirmation(), models.ActionGather, ResultReprompt), nil
	}

	if !affirmed {
		// Restart at the first field. Earlier answers stay until re-collected or skipped.
		s.Stage = models.StageInformationGathering
		s.Cursor = 0
		s.Attempts = 0
		return o.reply(s, prompts.Declined(svc), models.ActionGather, ResultAdvanced), nil
	}

	recordID, err := o.handoff.Complete(ctx, s, svc)
	if err != nil {
		o.logger.Error("failed to persist intake record", "session_id", s.SessionID, "service_id", svc.ID, "error", err)
		return o.reply(s, prompts.PersistFailureMessage, models.ActionHangup, ResultPersistFailed), nil
	}

	s.Stage = models.StageCompleted
	s.RecordID = recordID
	return o.reply(s, prompts.Submitted(svc, recordID), models.ActionHangup, ResultCompleted), nil
}

func (o *Orchestrator) completed(s *models.DialogueSession) (*Outcome, error) {
	svc, err := o.service(s)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Session: s,
		Reply:   prompts.AlreadyCompleted(svc, s.RecordID),
		Action:  models.ActionHangup,
		Result:  ResultNoop,
	}, nil
}

func (o *Orchestrator) service(s *models.DialogueSession) (models.ServiceDefinition, error) {
	svc, ok := o.catalog.Get(s.ServiceID)
	if !ok {
		return models.ServiceDefinition{}, fmt.Errorf("session %s references unknown service %q", s.SessionID, s.ServiceID)
	}
	return svc, nil
}

// reply records the assistant turn and packages the outcome.
func (o *Orchestrator) reply(s *models.DialogueSession, text, action, result string) *Outcome {
	now := o.now()
	s.AddTurn(models.RoleAssistant, text, now)
	s.UpdatedAt = now
	return &Outcome{
		Session: s,
		Reply:   text,
		Action:  action,
		Result:  result,
		Changed: true,
	}
}
