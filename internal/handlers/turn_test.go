package handlers

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
	"github.com/avvvet/council-intake/internal/dialogue"
	"github.com/avvvet/council-intake/internal/llm"
	"github.com/avvvet/council-intake/internal/memory"
	"github.com/avvvet/council-intake/internal/models"
	"github.com/avvvet/council-intake/internal/prompts"
	"github.com/avvvet/council-intake/internal/records"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// keywordNLU picks services by keyword and accepts any non-empty answer.
type keywordNLU struct{}

func (keywordNLU) Classify(ctx context.Context, utterance string, services []models.ServiceDefinition) (string, error) {
	if strings.Contains(strings.ToLower(utterance), "bin") {
		return "missed_bin", nil
	}
	return "", nil
}

func (keywordNLU) Extract(ctx context.Context, utterance string, field models.ServiceField) (string, error) {
	if strings.TrimSpace(utterance) == "" || utterance == "banana" {
		return "", llm.ErrInvalidInput
	}
	return utterance, nil
}

func (keywordNLU) Confirm(ctx context.Context, utterance string) (bool, error) {
	switch strings.ToLower(strings.Fields(utterance + " x")[0]) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, llm.ErrInvalidInput
}

type countingSink struct {
	mu      sync.Mutex
	records map[string]*models.IntakeRecord
	err     error
}

func (c *countingSink) Insert(ctx context.Context, record *models.IntakeRecord) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	if existing, ok := c.records[record.SessionID]; ok {
		return existing.ID, records.ErrRecordExists
	}
	c.records[record.SessionID] = record
	return record.ID, nil
}

func (c *countingSink) Get(ctx context.Context, recordID string) (*models.IntakeRecord, error) {
	return nil, records.ErrNotFound
}

// flakyStore fails the first conflicts Puts, or every Get when getErr is set.
type flakyStore struct {
	memory.Store
	mu        sync.Mutex
	conflicts int
	puts      int
	getErr    error
}

func (f *flakyStore) Get(ctx context.Context, sessionID string) (*models.DialogueSession, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Store.Get(ctx, sessionID)
}

func (f *flakyStore) Put(ctx context.Context, session *models.DialogueSession, expectedVersion int64) (int64, error) {
	f.mu.Lock()
	f.puts++
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return 0, memory.ErrConflict
	}
	f.mu.Unlock()
	return f.Store.Put(ctx, session, expectedVersion)
}

type fixture struct {
	handler *TurnHandler
	store   *flakyStore
	sink    *countingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	f := &fixture{
		store: &flakyStore{Store: memory.NewLocalStore()},
		sink:  &countingSink{records: make(map[string]*models.IntakeRecord)},
	}
	handoff := dialogue.NewHandoff(f.sink, nil, testLogger())
	orch := dialogue.NewOrchestrator(cat, keywordNLU{}, handoff, dialogue.Config{
		CallTimeout:      time.Second,
		MaxFieldAttempts: 3,
	}, testLogger())
	f.handler = NewTurnHandler(f.store, orch, testLogger())
	return f
}

func (f *fixture) turn(t *testing.T, utterance string) *models.TurnResponse {
	t.Helper()
	resp, err := f.handler.ProcessTurn(context.Background(), &models.TurnRequest{
		SessionID: "CA42",
		From:      "+447700900123",
		Utterance: utterance,
	})
	require.NoError(t, err)
	return resp
}

func TestProcessTurnFullDialogue(t *testing.T) {
	f := newFixture(t)

	resp := f.turn(t, "")
	assert.Contains(t, resp.Message, prompts.Greeting)
	assert.Equal(t, models.StageServiceSelection, resp.Stage)

	resp = f.turn(t, "my bins were not collected")
	assert.Equal(t, models.StageInformationGathering, resp.Stage)
	assert.Contains(t, resp.Message, "Report Missed Bin Collection")

	for _, answer := range []string{
		"Sam Jones",
		"skip",
		"12 High Street, AB1 2CD",
		"Monday",
		"Recycling (blue)",
		"On pavement",
		"skip",
	} {
		resp = f.turn(t, answer)
		assert.Nil(t, resp.ErrorCode, answer)
	}
	assert.Equal(t, models.StageConfirmation, resp.Stage)
	assert.Contains(t, resp.Message, "Property Address: 12 High Street, AB1 2CD")

	resp = f.turn(t, "yes please")
	assert.Equal(t, models.StageCompleted, resp.Stage)
	assert.Equal(t, models.ActionHangup, resp.Action)
	assert.Len(t, f.sink.records, 1)

	stored, err := f.store.Get(context.Background(), "CA42")
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, stored.Stage)
	assert.Equal(t, "+447700900123", stored.OriginatingAddress)
	assert.NotEmpty(t, stored.RecordID)
	assert.NotContains(t, stored.CollectedData, "email")
	version := stored.Version

	// A late duplicate of the confirmation changes nothing.
	resp = f.turn(t, "yes please")
	assert.Equal(t, models.ActionHangup, resp.Action)
	assert.Contains(t, resp.Message, "already been submitted")
	assert.Len(t, f.sink.records, 1)

	stored, err = f.store.Get(context.Background(), "CA42")
	require.NoError(t, err)
	assert.Equal(t, version, stored.Version)
}

func TestProcessTurnInvalidRequest(t *testing.T) {
	f := newFixture(t)

	resp, err := f.handler.ProcessTurn(context.Background(), &models.TurnRequest{Utterance: "hello"})
	require.NoError(t, err)
	require.NotNil(t, resp.ErrorCode)
	assert.Equal(t, models.ErrorInvalidRequest, *resp.ErrorCode)
	assert.Equal(t, prompts.FallbackMessage, resp.Message)
	assert.Zero(t, f.store.puts)
}

func TestProcessTurnRetriesOnceOnConflict(t *testing.T) {
	f := newFixture(t)
	f.store.conflicts = 1

	resp := f.turn(t, "")
	assert.Nil(t, resp.ErrorCode)
	assert.Contains(t, resp.Message, prompts.Greeting)
	assert.Equal(t, 2, f.store.puts)

	stored, err := f.store.Get(context.Background(), "CA42")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Len(t, stored.History, 1)
}

func TestProcessTurnGivesUpAfterSecondConflict(t *testing.T) {
	f := newFixture(t)
	f.store.conflicts = 2

	resp := f.turn(t, "")
	require.NotNil(t, resp.ErrorCode)
	assert.Equal(t, models.ErrorStoreConflict, *resp.ErrorCode)
	assert.Equal(t, prompts.PleaseRepeatMessage, resp.Message)
	assert.Equal(t, models.ActionGather, resp.Action)

	_, err := f.store.Get(context.Background(), "CA42")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestProcessTurnStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.getErr = errors.New("connection refused")

	resp := f.turn(t, "my bin")
	require.NotNil(t, resp.ErrorCode)
	assert.Equal(t, models.ErrorStoreFailed, *resp.ErrorCode)
	assert.Equal(t, prompts.FallbackMessage, resp.Message)
}

func TestProcessTurnPersistFailure(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("disk full")

	ctx := context.Background()
	session := models.NewSession("CA42", "+447700900123", time.Now())
	session.Stage = models.StageConfirmation
	session.ServiceID = "missed_bin"
	session.Cursor = 7
	session.CollectedData["full_name"] = "Sam Jones"
	_, err := f.store.Put(ctx, session, 0)
	require.NoError(t, err)

	resp := f.turn(t, "yes")
	require.NotNil(t, resp.ErrorCode)
	assert.Equal(t, models.ErrorPersistFailed, *resp.ErrorCode)
	assert.Equal(t, prompts.PersistFailureMessage, resp.Message)
	assert.Equal(t, models.ActionHangup, resp.Action)
	assert.Equal(t, models.StageConfirmation, resp.Stage)

	stored, err := f.store.Get(ctx, "CA42")
	require.NoError(t, err)
	assert.Equal(t, models.StageConfirmation, stored.Stage)
	assert.Len(t, stored.History, 2)
}

func TestProcessTurnConcurrentSessions(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "CA" + strings.Repeat("x", i+1)
			resp, err := f.handler.ProcessTurn(context.Background(), &models.TurnRequest{
				SessionID: id,
				Utterance: "missed bin please",
			})
			if assert.NoError(t, err) {
				assert.Nil(t, resp.ErrorCode)
				assert.Equal(t, models.StageInformationGathering, resp.Stage)
			}
		}()
	}
	wg.Wait()
}
