package dialogue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/avvvet/council-intake/internal/llm"
	"github.com/avvvet/council-intake/internal/metrics"
	"github.com/avvvet/council-intake/internal/models"
)

type extractionStatus int

const (
	extractValid extractionStatus = iota
	extractInvalid
	extractSkipped     // caller declined an optional field
	extractUnavailable // extractor failed or timed out
)

type extraction struct {
	status extractionStatus
	value  string
}

// skipPhrases let a caller pass over an optional field without asking the extractor.
var skipPhrases = map[string]bool{
	"skip":           true,
	"skip it":        true,
	"skip that":      true,
	"none":           true,
	"no":             true,
	"nothing":        true,
	"no thanks":      true,
	"n/a":            true,
	"not applicable": true,
}

func isSkip(utterance string) bool {
	normalized := strings.ToLower(strings.TrimSpace(utterance))
	normalized = strings.Trim(normalized, ".,!")
	return skipPhrases[normalized]
}

// extractField runs one field through the extractor. It never touches the
// session; the orchestrator applies the result.
func (o *Orchestrator) extractField(ctx context.Context, utterance string, field models.ServiceField) extraction {
	if !field.Required && isSkip(utterance) {
		return extraction{status: extractSkipped}
	}

	var value string
	err := o.bounded(ctx, "extract", func(ctx context.Context) error {
		var err error
		value, err = o.nlu.Extract(ctx, utterance, field)
		return err
	})

	switch {
	case err == nil && strings.TrimSpace(value) != "":
		return extraction{status: extractValid, value: strings.TrimSpace(value)}
	case err == nil, errors.Is(err, llm.ErrInvalidInput):
		return extraction{status: extractInvalid}
	default:
		o.logger.Warn("field extraction unavailable", "field", field.ID, "error", err)
		return extraction{status: extractUnavailable}
	}
}

// bounded runs a collaborator call under the per-call timeout and records it.
func (o *Orchestrator) bounded(ctx context.Context, kind string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	started := time.Now()
	err := fn(callCtx)
	metrics.ObserveCollaborator(kind, callStatus(err), started)
	return err
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, llm.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}
