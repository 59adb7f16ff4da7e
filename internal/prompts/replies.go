package prompts

import (
	"fmt"
	"strings"

	"github.com/avvvet/council-intake/internal/models"
)

const (
	Greeting = "Hello! Welcome to the Council Helpline. I'm Guru, your AI assistant, and I'll help you with your council service needs today."

	FallbackMessage = "I'm sorry, I didn't catch that. Could you please say that again?"

	// PleaseRepeatMessage is used when a turn could not be applied safely.
	PleaseRepeatMessage = "Sorry, I missed that. Could you please repeat what you just said?"

	PersistFailureMessage = "I'm very sorry, but I couldn't submit your request just now because of a technical problem. Nothing has been lost; please call back shortly and we'll pick up where we left off. Goodbye."

	EscalationMessage = "I'm having trouble understanding that detail, so I'll pass your request to a member of our team who will contact you directly. Thank you for calling. Goodbye."

	DeclinedPrefix = "No problem! Let's go through the information again."

	// ProcessingErrorMessage accompanies transport-level error responses.
	ProcessingErrorMessage = "I'm sorry, I encountered an error processing your request. Please try again."
)

// ServiceList enumerates the catalog for spoken selection.
func ServiceList(services []models.ServiceDefinition) string {
	names := make([]string, len(services))
	for i, svc := range services {
		names[i] = fmt.Sprintf("%d, %s", i+1, svc.Name)
	}
	return strings.Join(names, ", ")
}

// Welcome is the priming reply for a brand-new session.
func Welcome(services []models.ServiceDefinition) string {
	return fmt.Sprintf("%s Please tell me which service you need. You can choose from: %s.", Greeting, ServiceList(services))
}

// UnrecognizedService re-prompts the service selection stage.
func UnrecognizedService(services []models.ServiceDefinition) string {
	return fmt.Sprintf("I didn't quite catch which service you need. Please choose from: %s. You can say the service name or just the number.",
		ServiceList(services))
}

// ServiceSelected opens information gathering.
func ServiceSelected(svc models.ServiceDefinition) string {
	return fmt.Sprintf("Great! I'll help you with %s. %s %s", svc.Name, svc.WelcomeMessage, AskField(svc.Fields[0]))
}

// AskField asks for a field the first time.
func AskField(field models.ServiceField) string {
	question := fmt.Sprintf("Could you please tell me your %s?", strings.ToLower(field.Label))
	if strings.HasSuffix(field.Label, "?") {
		question = field.Label
	}

	var b strings.Builder
	b.WriteString(question)
	if len(field.Options) > 0 {
		b.WriteString(" The options are: ")
		b.WriteString(joinOptions(field.Options))
		b.WriteString(".")
	}
	if !field.Required {
		b.WriteString(" This one is optional, so you can say skip.")
	}
	if field.HelpText != "" {
		b.WriteString(" ")
		b.WriteString(field.HelpText)
	}
	return b.String()
}

// NextField acknowledges an answer and asks for the next field.
func NextField(field models.ServiceField) string {
	return "Thank you. " + AskField(field)
}

// RepromptField repeats the request for the same field after an invalid answer.
func RepromptField(field models.ServiceField) string {
	return fmt.Sprintf("I didn't quite catch that. %s", AskField(field))
}

// CollaboratorUnavailable re-prompts after a failed or slow collaborator call.
func CollaboratorUnavailable(field *models.ServiceField) string {
	if field == nil {
		return FallbackMessage
	}
	return fmt.Sprintf("I had trouble processing that. %s", AskField(*field))
}

// Summary reads back everything collected and asks for confirmation.
func Summary(svc models.ServiceDefinition, data map[string]string) string {
	parts := make([]string, 0, len(svc.Fields))
	for _, f := range svc.Fields {
		if v, ok := data[f.ID]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", strings.TrimSuffix(f.Label, "?"), v))
		}
	}
	return fmt.Sprintf("Thank you! I've collected all the information: %s. Is this information correct? Please say yes to confirm or no to make changes.",
		strings.Join(parts, ", "))
}

// AskConfirmation repeats the confirmation question.
func AskConfirmation() string {
	return "Sorry, I didn't catch that. Is the information I read back correct? Please say yes or no."
}

// Declined restarts collection at the first field.
func Declined(svc models.ServiceDefinition) string {
	return fmt.Sprintf("%s %s", DeclinedPrefix, AskField(svc.Fields[0]))
}

// Submitted closes a completed dialogue.
func Submitted(svc models.ServiceDefinition, recordID string) string {
	return fmt.Sprintf("Perfect! I've submitted your %s request. Your reference number is %s. %s Thank you for using our service!",
		svc.Name, Reference(recordID), svc.CompletionMessage)
}

// Reference is the short, speakable form of a record ID.
func Reference(recordID string) string {
	ref := strings.ReplaceAll(recordID, "-", "")
	if len(ref) > 8 {
		ref = ref[:8]
	}
	return strings.ToUpper(ref)
}

// AlreadyCompleted answers turns that arrive after completion.
func AlreadyCompleted(svc models.ServiceDefinition, recordID string) string {
	return fmt.Sprintf("Your %s request has already been submitted with reference %s. Thank you, goodbye!",
		svc.Name, Reference(recordID))
}

func joinOptions(options []string) string {
	switch len(options) {
	case 0:
		return ""
	case 1:
		return options[0]
	}
	return strings.Join(options[:len(options)-1], ", ") + ", or " + options[len(options)-1]
}
