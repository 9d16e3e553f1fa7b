package ws

import "github.com/stayconnect/stayconnect/internal/core/domain"

// Event is the envelope pushed to connected clients.
type Event struct {
	Type    string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

const (
	EventMessage      = "message"
	EventIncomingCall = "incoming_call"
	EventCallCleared  = "call_cleared"
	EventCallEnded    = "call_ended"
	EventCallNotFound = "call_not_found"
)

type Client interface {
	ID() string
	UserID() domain.UserID
	SendEvent(ev Event) error
	Close() error
}
