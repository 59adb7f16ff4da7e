package dialogue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/council-intake/internal/catalog"
	"github.com/avvvet/council-intake/internal/llm"
	"github.com/avvvet/council-intake/internal/models"
	"github.com/avvvet/council-intake/internal/records"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubNLU answers like a well-behaved model: it echoes utterances as field
// values, rejects "banana", and understands plain yes/no.
type stubNLU struct {
	mu       sync.Mutex
	service  string
	err      error // returned by every call when set
	extract  func(ctx context.Context, utterance string, field models.ServiceField) (string, error)
	classify int
	extracts int
	confirms int
}

func (s *stubNLU) Classify(ctx context.Context, utterance string, services []models.ServiceDefinition) (string, error) {
	s.mu.Lock()
	s.classify++
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.service, nil
}

func (s *stubNLU) Extract(ctx context.Context, utterance string, field models.ServiceField) (string, error) {
	s.mu.Lock()
	s.extracts++
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.extract != nil {
		return s.extract(ctx, utterance, field)
	}
	if utterance == "banana" || strings.TrimSpace(utterance) == "" {
		return "", llm.ErrInvalidInput
	}
	return utterance, nil
}

func (s *stubNLU) Confirm(ctx context.Context, utterance string) (bool, error) {
	s.mu.Lock()
	s.confirms++
	s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	lower := strings.ToLower(utterance)
	switch {
	case strings.HasPrefix(lower, "yes"):
		return true, nil
	case strings.HasPrefix(lower, "no"):
		return false, nil
	}
	return false, llm.ErrInvalidInput
}

func (s *stubNLU) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classify + s.extracts + s.confirms
}

// memSink mirrors the per-session idempotency of the Redis sink.
type memSink struct {
	mu        sync.Mutex
	bySession map[string]*models.IntakeRecord
	err       error
}

func newMemSink() *memSink {
	return &memSink{bySession: make(map[string]*models.IntakeRecord)}
}

func (m *memSink) Insert(ctx context.Context, record *models.IntakeRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if existing, ok := m.bySession[record.SessionID]; ok {
		return existing.ID, records.ErrRecordExists
	}
	m.bySession[record.SessionID] = record
	return record.ID, nil
}

func (m *memSink) Get(ctx context.Context, recordID string) (*models.IntakeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.bySession {
		if r.ID == recordID {
			return r, nil
		}
	}
	return nil, records.ErrNotFound
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bySession)
}

type sentMessage struct {
	address, subject, body string
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *stubNotifier) Send(ctx context.Context, address, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{address, subject, body})
	return nil
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

var errBackend = errors.New("backend unavailable")

// testService has one field of each shape the orchestrator treats differently.
var testService = models.ServiceDefinition{
	ID:                "noise_complaint",
	Name:              "Noise Complaint",
	Priority:          models.PriorityLow,
	WelcomeMessage:    "I'll take the details of the noise problem.",
	CompletionMessage: "An officer will review it within 10 working days.",
	Fields: []models.ServiceField{
		{ID: "full_name", Label: "Full Name", Type: models.FieldName, Required: true},
		{ID: "email", Label: "Email Address", Type: models.FieldEmail, Required: true},
		{ID: "details", Label: "Description of the noise", Type: models.FieldText, Required: false},
	},
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]models.ServiceDefinition{testService})
	require.NoError(t, err)
	return cat
}

type fixture struct {
	orch     *Orchestrator
	nlu      *stubNLU
	sink     *memSink
	notifier *stubNotifier
}

func newFixture(t *testing.T, cat *catalog.Catalog) *fixture {
	t.Helper()
	f := &fixture{
		nlu:      &stubNLU{service: testService.ID},
		sink:     newMemSink(),
		notifier: &stubNotifier{},
	}
	handoff := NewHandoff(f.sink, f.notifier, testLogger())
	f.orch = NewOrchestrator(cat, f.nlu, handoff, Config{
		CallTimeout:      time.Second,
		MaxFieldAttempts: 3,
	}, testLogger())
	return f
}

// gatheringSession is a session for testService with the cursor at field.
func gatheringSession(cursor int, data map[string]string) *models.DialogueSession {
	s := models.NewSession("CA100", "+447700900123", time.Now())
	s.Stage = models.StageInformationGathering
	s.ServiceID = testService.ID
	s.Cursor = cursor
	for k, v := range data {
		s.CollectedData[k] = v
	}
	return s
}

func confirmationSession() *models.DialogueSession {
	s := gatheringSession(len(testService.Fields), map[string]string{
		"full_name": "Jane Smith",
		"email":     "jane@example.com",
		"details":   "Loud music after midnight",
	})
	s.Stage = models.StageConfirmation
	return s
}
