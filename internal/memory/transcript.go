package memory

import (
	"context"
	"fmt"

	"github.com/avvvet/council-intake/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"
)

// ChatHistory loads a session transcript into a LangChainGo message history.
func ChatHistory(history []models.Turn) *memory.ChatMessageHistory {
	messages := make([]llms.ChatMessage, 0, len(history))
	for _, turn := range history {
		switch turn.Role {
		case models.RoleUser:
			messages = append(messages, llms.HumanChatMessage{Content: turn.Text})
		case models.RoleAssistant:
			messages = append(messages, llms.AIChatMessage{Content: turn.Text})
		}
	}
	return memory.NewChatMessageHistory(memory.WithPreviousMessages(messages))
}

// FormatTranscript renders a transcript as "Caller: ..." / "Assistant: ..." lines.
func FormatTranscript(ctx context.Context, history []models.Turn) (string, error) {
	messages, err := ChatHistory(history).Messages(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get messages: %w", err)
	}
	if len(messages) == 0 {
		return "No conversation yet.", nil
	}

	formatted, err := llms.GetBufferString(messages, "Caller", "Assistant")
	if err != nil {
		return "", fmt.Errorf("failed to format transcript: %w", err)
	}
	return formatted, nil
}
