package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/avvvet/council-intake/internal/models"
)

const ClassifySystemPrompt = `You are helping identify which council service a caller needs. Based on their speech, return ONLY the service ID from these options:
%s
Return only the service ID, nothing else. If the request is unclear or matches none of the options, return null.`

const ExtractSystemPrompt = `You are processing a %s field called "%s".
Extract the relevant information from the caller's speech and return it in a clean format.
For email addresses, ensure proper format. For phone numbers, extract digits.
For dates, use YYYY-MM-DD format. For addresses, format clearly on one line.
%s
RESPONSE FORMAT:
You must respond with a valid JSON object in this exact format:
{"valid": true or false, "value": "the normalized value or empty"}
If the information seems invalid, incomplete or unrelated to the field, respond with {"valid": false, "value": ""}.`

const ConfirmSystemPrompt = `The caller is confirming the information they gave. Return 'yes' if they are confirming or agreeing, 'no' if they want to make changes. Look for words like yes, correct, right, okay, sure versus no, wrong, change, incorrect. Return only yes or no.`

// InvalidMarker is the plain-text sentinel some models return instead of JSON.
const InvalidMarker = "INVALID"

// BuildClassifyPrompt lists the catalog for the classifier.
func BuildClassifyPrompt(services []models.ServiceDefinition) string {
	var builder strings.Builder
	for _, svc := range services {
		builder.WriteString(fmt.Sprintf("- %s: %s\n", svc.ID, describe(svc)))
	}
	return fmt.Sprintf(ClassifySystemPrompt, builder.String())
}

func describe(svc models.ServiceDefinition) string {
	if svc.Description != "" {
		return svc.Description
	}
	return svc.Name
}

// BuildExtractPrompt scopes the extractor to a single field.
func BuildExtractPrompt(field models.ServiceField) string {
	var hints []string
	if len(field.Options) > 0 {
		rule := "one of"
		if field.Type == models.FieldMultiSelect {
			rule = "one or more of (comma separated)"
		}
		hints = append(hints, fmt.Sprintf("The value must be %s these options, spelled exactly: %s.",
			rule, strings.Join(field.Options, "; ")))
	}
	if v := field.Validation; v != nil {
		if v.Pattern != "" {
			hints = append(hints, fmt.Sprintf("The value should match the pattern %s.", v.Pattern))
		}
		if v.MinLength > 0 {
			hints = append(hints, fmt.Sprintf("It should be at least %d characters.", v.MinLength))
		}
		if v.MaxLength > 0 {
			hints = append(hints, fmt.Sprintf("It should be at most %d characters.", v.MaxLength))
		}
		if v.Message != "" {
			hints = append(hints, v.Message+".")
		}
	}
	if field.HelpText != "" {
		hints = append(hints, "Guidance given to the caller: "+field.HelpText)
	}
	return fmt.Sprintf(ExtractSystemPrompt, field.Type, field.Label, strings.Join(hints, "\n"))
}

// ParseServiceID normalizes a classifier reply. It returns "" when the model declined.
func ParseServiceID(content string) string {
	id := strings.ToLower(strings.TrimSpace(content))
	id = strings.Trim(id, "\"'`.")
	if fields := strings.Fields(id); len(fields) > 0 {
		id = fields[0]
	}
	switch id {
	case "", "null", "none", "other", "unknown":
		return ""
	}
	return id
}

type extraction struct {
	Valid bool   `json:"valid"`
	Value string `json:"value"`
}

// ParseExtraction returns the normalized value and whether the extractor accepted the input.
func ParseExtraction(content string) (string, bool, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || strings.EqualFold(trimmed, InvalidMarker) {
		return "", false, nil
	}

	jsonContent := extractJSON(trimmed)
	if jsonContent == "" {
		return "", false, fmt.Errorf("no valid JSON found in response")
	}

	var result extraction
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		return "", false, fmt.Errorf("failed to parse JSON: %w", err)
	}

	value := strings.TrimSpace(result.Value)
	if !result.Valid || value == "" || strings.EqualFold(value, InvalidMarker) {
		return "", false, nil
	}
	return value, true, nil
}

// ParseConfirmation reports whether the interpreter answered yes, and whether
// it answered yes or no at all.
func ParseConfirmation(content string) (affirmed, understood bool) {
	words := strings.Fields(strings.ToLower(content))
	if len(words) == 0 {
		return false, false
	}
	switch strings.Trim(words[0], "\"'`.,!") {
	case "yes":
		return true, true
	case "no":
		return false, true
	}
	return false, false
}

func extractJSON(content string) string {
	// Look for JSON object in the content
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content, "}")
	if end == -1 || end <= start {
		return ""
	}

	return content[start : end+1]
}
