package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avvvet/council-intake/internal/models"
	"github.com/avvvet/council-intake/internal/prompts"
	"github.com/tmc/langchaingo/llms"
)

// Assistant implements Collaborators on top of a langchaingo model.
// Every call is a single system+human exchange with temperature 0, so it is
// stateless and safe to retry.
type Assistant struct {
	model  llms.Model
	logger *slog.Logger
}

func NewAssistant(model llms.Model, logger *slog.Logger) *Assistant {
	return &Assistant{
		model:  model,
		logger: logger,
	}
}

func (a *Assistant) Classify(ctx context.Context, utterance string, services []models.ServiceDefinition) (string, error) {
	if strings.TrimSpace(utterance) == "" {
		return "", nil
	}
	content, err := a.generate(ctx, prompts.BuildClassifyPrompt(services), utterance, 50)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	return prompts.ParseServiceID(content), nil
}

func (a *Assistant) Extract(ctx context.Context, utterance string, field models.ServiceField) (string, error) {
	if strings.TrimSpace(utterance) == "" {
		return "", ErrInvalidInput
	}
	content, err := a.generate(ctx, prompts.BuildExtractPrompt(field), utterance, 150)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", field.ID, err)
	}

	value, valid, err := prompts.ParseExtraction(content)
	if err != nil {
		// An unparseable answer counts against the caller's attempts like any other miss.
		a.logger.Warn("unparseable extraction response", "field", field.ID, "error", err)
		return "", ErrInvalidInput
	}
	if !valid {
		return "", ErrInvalidInput
	}
	return value, nil
}

func (a *Assistant) Confirm(ctx context.Context, utterance string) (bool, error) {
	if strings.TrimSpace(utterance) == "" {
		return false, ErrInvalidInput
	}
	content, err := a.generate(ctx, prompts.ConfirmSystemPrompt, utterance, 10)
	if err != nil {
		return false, fmt.Errorf("confirm: %w", err)
	}
	affirmed, understood := prompts.ParseConfirmation(content)
	if !understood {
		return false, ErrInvalidInput
	}
	return affirmed, nil
}

func (a *Assistant) generate(ctx context.Context, systemPrompt, utterance string, maxTokens int) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, utterance),
	}

	response, err := a.model.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return strings.TrimSpace(response.Choices[0].Content), nil
}
