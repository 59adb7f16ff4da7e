// Package records persists finalized intake records.
package records

import (
	"context"
	"errors"

	"github.com/avvvet/council-intake/internal/models"
)

var (
	// ErrRecordExists is returned by Insert, together with the existing record's
	// ID, when a record was already stored for the same session.
	ErrRecordExists = errors.New("intake record already exists for session")

	// ErrNotFound is returned by Get for an unknown record ID.
	ErrNotFound = errors.New("intake record not found")
)

// Sink stores intake records. Insert is idempotent per session: at most one
// record is ever created for a given SessionID.
type Sink interface {
	Insert(ctx context.Context, record *models.IntakeRecord) (string, error)
	Get(ctx context.Context, recordID string) (*models.IntakeRecord, error)
}
