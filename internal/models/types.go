package models

import "time"

// Priority classes a service request can carry
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// FieldType is the semantic type of a service field
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldName        FieldType = "name" // the caller's own name
	FieldEmail       FieldType = "email"
	FieldPhone       FieldType = "phone"
	FieldDate        FieldType = "date"
	FieldAddress     FieldType = "address"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multiselect"
	FieldFile        FieldType = "file"
)

// FieldValidation carries advisory format constraints for the extractor
type FieldValidation struct {
	Pattern   string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	MinLength int    `yaml:"min_length,omitempty" json:"min_length,omitempty" validate:"gte=0"`
	MaxLength int    `yaml:"max_length,omitempty" json:"max_length,omitempty" validate:"gte=0"`
	Message   string `yaml:"message,omitempty" json:"message,omitempty"`
}

// ServiceField is one piece of information a service needs
type ServiceField struct {
	ID         string           `yaml:"id" json:"id" validate:"required"`
	Label      string           `yaml:"label" json:"label" validate:"required"`
	Type       FieldType        `yaml:"type" json:"type" validate:"required,oneof=text name email phone date address select multiselect file"`
	Required   bool             `yaml:"required" json:"required"`
	Options    []string         `yaml:"options,omitempty" json:"options,omitempty" validate:"required_if=Type select,required_if=Type multiselect"`
	Validation *FieldValidation `yaml:"validation,omitempty" json:"validation,omitempty"`
	HelpText   string           `yaml:"help_text,omitempty" json:"help_text,omitempty"`
}

// ServiceDefinition describes a civic service and the ordered fields it collects
type ServiceDefinition struct {
	ID                string         `yaml:"id" json:"id" validate:"required"`
	Name              string         `yaml:"name" json:"name" validate:"required"`
	Description       string         `yaml:"description" json:"description"`
	Category          string         `yaml:"category" json:"category"`
	Priority          Priority       `yaml:"priority" json:"priority" validate:"required,oneof=low medium high urgent"`
	Fields            []ServiceField `yaml:"fields" json:"fields" validate:"required,min=1,dive"`
	WelcomeMessage    string         `yaml:"welcome_message" json:"welcome_message" validate:"required"`
	CompletionMessage string         `yaml:"completion_message" json:"completion_message" validate:"required"`
}

// Stage of a dialogue session
type Stage string

const (
	StageServiceSelection     Stage = "service_selection"
	StageInformationGathering Stage = "information_gathering"
	StageConfirmation         Stage = "confirmation"
	StageCompleted            Stage = "completed"
)

// Speaker roles in the transcript
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single transcript entry
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DialogueSession is the stored state of one caller's intake conversation
type DialogueSession struct {
	SessionID          string            `json:"session_id"`
	Stage              Stage             `json:"stage"`
	ServiceID          string            `json:"service_id,omitempty"`
	CollectedData      map[string]string `json:"collected_data"`
	Cursor             int               `json:"cursor"`
	Attempts           int               `json:"attempts"` // consecutive invalid answers for the field at Cursor
	History            []Turn            `json:"history"`
	OriginatingAddress string            `json:"originating_address"`
	Escalated          bool              `json:"escalated,omitempty"`
	RecordID           string            `json:"record_id,omitempty"`
	Version            int64             `json:"version"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// NewSession returns a fresh session in the service selection stage
func NewSession(sessionID, from string, now time.Time) *DialogueSession {
	return &DialogueSession{
		SessionID:          sessionID,
		Stage:              StageServiceSelection,
		CollectedData:      make(map[string]string),
		History:            []Turn{},
		OriginatingAddress: from,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Clone returns a deep copy so a checked-out session can be mutated freely
func (s *DialogueSession) Clone() *DialogueSession {
	c := *s
	c.CollectedData = make(map[string]string, len(s.CollectedData))
	for k, v := range s.CollectedData {
		c.CollectedData[k] = v
	}
	c.History = append([]Turn(nil), s.History...)
	return &c
}

// AddTurn appends to the transcript
func (s *DialogueSession) AddTurn(role, text string, at time.Time) {
	s.History = append(s.History, Turn{Role: role, Text: text, Timestamp: at})
}

// IntakeRecord is the finalized artifact of a completed dialogue
type IntakeRecord struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id"`
	CallerAddress string            `json:"caller_address"`
	ResidentName  string            `json:"resident_name"`
	ResidentEmail string            `json:"resident_email,omitempty"`
	ServiceID     string            `json:"service_id"`
	ServiceName   string            `json:"service_name"`
	Priority      Priority          `json:"priority"`
	Status        string            `json:"status"`
	CollectedData map[string]string `json:"collected_data"`
	Transcript    []Turn            `json:"transcript"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Record statuses
const (
	RecordPending = "pending"
)

// TurnRequest is one inbound utterance from the transport layer
type TurnRequest struct {
	SessionID string `json:"session_id" validate:"required,max=128"`
	From      string `json:"from" validate:"max=256"`
	Utterance string `json:"utterance" validate:"max=4000"`
}

// TurnResponse is the next system utterance for the transport layer
type TurnResponse struct {
	SessionID    string  `json:"session_id"`
	Message      string  `json:"message"`
	Action       string  `json:"action"` // "gather" or "hangup"
	Stage        Stage   `json:"stage,omitempty"`
	ErrorCode    *string `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// Continuation signals
const (
	ActionGather = "gather"
	ActionHangup = "hangup"
)

// Error codes
const (
	ErrorInvalidRequest = "INVALID_REQUEST"
	ErrorStoreFailed    = "SESSION_STORE_FAILED"
	ErrorStoreConflict  = "SESSION_CONFLICT"
	ErrorPersistFailed  = "PERSIST_FAILED"
	ErrorInternal       = "INTERNAL_ERROR"
)

// EmailRequest is published for the mailer worker
type EmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
