package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/council-intake/internal/catalog"
	"github.com/avvvet/council-intake/internal/models"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedService answers turns until it sees "yes", then hangs up.
func scriptedService(t *testing.T, conn *nats.Conn) func() []models.TurnRequest {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []models.TurnRequest
	)
	_, err := conn.Subscribe("intake.turn", func(msg *nats.Msg) {
		var req models.TurnRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()

		resp := models.TurnResponse{
			SessionID: req.SessionID,
			Message:   "echo " + req.Utterance,
			Action:    models.ActionGather,
			Stage:     models.StageInformationGathering,
		}
		if req.Utterance == "yes" {
			resp.Action = models.ActionHangup
			resp.Stage = models.StageCompleted
		}
		data, _ := json.Marshal(resp)
		_ = msg.Respond(data)
	})
	require.NoError(t, err)
	require.NoError(t, conn.Flush())
	return func() []models.TurnRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]models.TurnRequest(nil), seen...)
	}
}

func TestChatRunsUntilHangup(t *testing.T) {
	srv := natsserver.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	requests := scriptedService(t, conn)
	turnSubject = "intake.turn"
	timeout = 2 * time.Second

	var out bytes.Buffer
	err = chat(conn, "dev-1", strings.NewReader("pothole\nyes\nnever sent\n"), &out)
	require.NoError(t, err)

	seen := requests()
	require.Len(t, seen, 3)
	assert.Equal(t, "", seen[0].Utterance)
	assert.Equal(t, "pothole", seen[1].Utterance)
	assert.Equal(t, "yes", seen[2].Utterance)
	for _, req := range seen {
		assert.Equal(t, "dev-1", req.SessionID)
	}
	assert.Contains(t, out.String(), "[completed] echo yes")
	assert.Contains(t, out.String(), "(call ended)")
}

func TestSendTurnNoResponder(t *testing.T) {
	srv := natsserver.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = sendTurn(conn, "intake.turn", &models.TurnRequest{SessionID: "x"}, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestPrintResponseWithError(t *testing.T) {
	code := models.ErrorPersistFailed
	msg := "intake record could not be persisted"

	var out bytes.Buffer
	printResponse(&out, &models.TurnResponse{
		Message:      "sorry",
		Action:       models.ActionHangup,
		Stage:        models.StageConfirmation,
		ErrorCode:    &code,
		ErrorMessage: &msg,
	})

	assert.Equal(t, "[confirmation] sorry\n  error: PERSIST_FAILED (intake record could not be persisted)\n  (call ended)\n", out.String())
}

func TestPrintCatalog(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	var out bytes.Buffer
	printCatalog(&out, cat)

	text := out.String()
	assert.Contains(t, text, "blue_badge  Blue Badge Application  [Accessibility, medium]")
	assert.Contains(t, text, "1. full_name")
	assert.Contains(t, text, "Recycling (blue)")
}
