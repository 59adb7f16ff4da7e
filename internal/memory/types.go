package memory

import (
	"context"
	"errors"

	"github.com/avvvet/council-intake/internal/models"
)

var (
	// ErrNotFound is returned by Get when no session exists for the identifier.
	ErrNotFound = errors.New("session not found")

	// ErrConflict is returned by Put when the stored version no longer matches.
	ErrConflict = errors.New("session version conflict")
)

// Store defines durable, keyed storage for dialogue sessions.
// This allows us to swap between Redis, an in-process map for tests, etc.
type Store interface {
	// Get loads a session. It returns ErrNotFound when none exists.
	Get(ctx context.Context, sessionID string) (*models.DialogueSession, error)

	// Put writes a session if the stored version equals expectedVersion
	// (0 meaning the session must not exist yet), and returns the new version,
	// which is also set on session. On mismatch it returns ErrConflict and
	// writes nothing.
	Put(ctx context.Context, session *models.DialogueSession, expectedVersion int64) (int64, error)
}
