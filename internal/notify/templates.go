package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/avvvet/council-intake/internal/models"
)

// DefaultSalutation is used when the caller never gave their name.
const DefaultSalutation = "Resident"

// ConfirmationEmail renders the plain-text confirmation for a completed request.
func ConfirmationEmail(record *models.IntakeRecord, svc models.ServiceDefinition, reference, name string) (subject, body string) {
	if name == "" {
		name = DefaultSalutation
	}
	subject = fmt.Sprintf("Council Service Request Confirmation - %s", svc.Name)

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	fmt.Fprintf(&b, "Thank you for contacting us through our AI assistant Guru. We have received your %s request and it has been logged in our system.\n\n", svc.Name)
	b.WriteString("Request Details\n")
	fmt.Fprintf(&b, "  Reference Number: %s\n", reference)
	fmt.Fprintf(&b, "  Service Type: %s\n", svc.Name)
	fmt.Fprintf(&b, "  Date Submitted: %s\n\n", record.CreatedAt.Format(time.DateOnly))
	b.WriteString("Information Provided\n")
	for _, f := range svc.Fields {
		if v, ok := record.CollectedData[f.ID]; ok {
			fmt.Fprintf(&b, "  %s: %s\n", strings.TrimSuffix(f.Label, "?"), v)
		}
	}
	b.WriteString("\nWhat Happens Next?\n")
	b.WriteString("  - Our team will review your request within 2-3 business days\n")
	b.WriteString("  - You may be contacted for additional information if needed\n")
	b.WriteString("  - You can quote your reference number in any correspondence\n\n")
	fmt.Fprintf(&b, "%s\n", svc.CompletionMessage)

	return subject, b.String()
}
