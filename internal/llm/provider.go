package llm

import (
	"context"
	"errors"

	"github.com/avvvet/council-intake/internal/models"
)

// ErrInvalidInput is the extraction sentinel: the utterance did not contain a
// usable value for the field. It is distinct from a legitimately empty value
// and from a failed call.
var ErrInvalidInput = errors.New("invalid input for field")

// Classifier maps an utterance to a service identifier, or "" when unrecognized.
type Classifier interface {
	Classify(ctx context.Context, utterance string, services []models.ServiceDefinition) (string, error)
}

// Extractor maps an utterance to a normalized value for one field.
// It returns ErrInvalidInput when the utterance does not answer the field.
type Extractor interface {
	Extract(ctx context.Context, utterance string, field models.ServiceField) (string, error)
}

// Interpreter reports whether an utterance affirms the read-back summary.
// It returns ErrInvalidInput when the answer is neither a yes nor a no.
type Interpreter interface {
	Confirm(ctx context.Context, utterance string) (bool, error)
}

// Collaborators bundles the three natural-language calls the dialogue depends on.
type Collaborators interface {
	Classifier
	Extractor
	Interpreter
}
