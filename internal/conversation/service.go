package conversation

import (
	"context"

	"github.com/heydoc/booking-platform/internal/session"
)

// Service is the conversational booking entrypoint implemented by the
// engine and wrapped by the queue-backed dispatcher.
type Service interface {
	StartConversation(ctx context.Context, req StartRequest) (*Response, error)
	ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error)
}

// StartRequest opens a fresh booking conversation.
type StartRequest struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel,omitempty"`
}

// MessageRequest is one user turn.
type MessageRequest struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel,omitempty"`
	Message string `json:"message"`
}

// Actions carried on a Response.
const (
	ActionCollectInfo = "collect_info"
	ActionSuggest     = "suggest_appointment"
	ActionConfirm     = "confirm_appointment"
	ActionDecline     = "decline_appointment"
	ActionError       = "error"
)

// Response is the engine's answer to one turn.
type Response struct {
	UserID      string                        `json:"user_id"`
	SessionID   string                        `json:"session_id,omitempty"`
	Action      string                        `json:"action"`
	Message     string                        `json:"message"`
	Status      session.Status                `json:"status,omitempty"`
	Missing     []string                      `json:"missing_fields,omitempty"`
	Suggestion  *session.SuggestedAppointment `json:"suggestion,omitempty"`
	Appointment *session.ConfirmedAppointment `json:"appointment,omitempty"`
	// Transcript echoes the recognised text for voice turns.
	Transcript string `json:"transcript,omitempty"`
}
