// Package notify delivers best-effort confirmation messages to residents.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avvvet/council-intake/internal/models"
	"github.com/nats-io/nats.go"
)

const defaultFlushTimeout = 5 * time.Second

// Notifier sends a message to an address.
type Notifier interface {
	Send(ctx context.Context, address, subject, body string) error
}

// NATSNotifier hands email requests to a mailer worker over NATS.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

func NewNATSNotifier(conn *nats.Conn, subject string) *NATSNotifier {
	return &NATSNotifier{
		conn:    conn,
		subject: subject,
	}
}

// Send publishes the request and waits for the server to acknowledge the flush.
func (n *NATSNotifier) Send(ctx context.Context, address, subject, body string) error {
	data, err := json.Marshal(models.EmailRequest{
		To:      address,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish email request: %w", err)
	}
	// FlushWithContext refuses contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFlushTimeout)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush email request: %w", err)
	}
	return nil
}
