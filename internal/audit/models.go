package audit

import "time"

// Action names an audited registry change.
type Action string

const (
	ActionRegistrationAccepted Action = "registration_accepted"
	ActionAddressVoided        Action = "address_voided"
	ActionNotificationQueued   Action = "notification_queued"
	ActionSettingsInitialized  Action = "settings_initialized"
	ActionSettingsUpdated      Action = "settings_updated"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	// Subject is the address the event is about, or "settings".
	Subject string `json:"subject"`
	// Actor is the caller address or admin token subject.
	Actor     string `json:"actor,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}
