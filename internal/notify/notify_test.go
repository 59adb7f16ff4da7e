package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/avvvet/council-intake/internal/models"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSNotifierPublishes(t *testing.T) {
	srv := natsserver.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	sub, err := conn.SubscribeSync("intake.notify.email")
	require.NoError(t, err)

	n := NewNATSNotifier(conn, "intake.notify.email")
	require.NoError(t, n.Send(context.Background(), "jane@example.com", "Hello", "Body"))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var req models.EmailRequest
	require.NoError(t, json.Unmarshal(msg.Data, &req))
	assert.Equal(t, models.EmailRequest{To: "jane@example.com", Subject: "Hello", Body: "Body"}, req)
}

func TestNATSNotifierFailsWhenClosed(t *testing.T) {
	srv := natsserver.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	conn.Close()

	n := NewNATSNotifier(conn, "intake.notify.email")
	assert.Error(t, n.Send(context.Background(), "jane@example.com", "Hello", "Body"))
}

func TestConfirmationEmail(t *testing.T) {
	svc := models.ServiceDefinition{
		Name:              "Report Pothole",
		CompletionMessage: "We'll assess the issue within 5 working days.",
		Fields: []models.ServiceField{
			{ID: "location", Label: "Exact Location"},
			{ID: "severity", Label: "How severe is the pothole?"},
			{ID: "notes", Label: "Notes"},
		},
	}
	record := &models.IntakeRecord{
		CollectedData: map[string]string{"location": "High Street", "severity": "Severe"},
		CreatedAt:     time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}

	subject, body := ConfirmationEmail(record, svc, "AB12CD34", "")
	assert.Equal(t, "Council Service Request Confirmation - Report Pothole", subject)
	assert.Contains(t, body, "Hello Resident,")
	assert.Contains(t, body, "Reference Number: AB12CD34")
	assert.Contains(t, body, "Date Submitted: 2026-10-19")
	assert.Contains(t, body, "Exact Location: High Street")
	assert.Contains(t, body, "How severe is the pothole: Severe")
	assert.NotContains(t, body, "Notes:")

	_, named := ConfirmationEmail(record, svc, "AB12CD34", "Jane Doe")
	assert.Contains(t, named, "Hello Jane Doe,")
}
