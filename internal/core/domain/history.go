package domain

import "time"

// HistoryStatus is the viewer-relative call log vocabulary. It is coarser
// than CallStatus: each participant's entry describes the call from that
// participant's side only.
type HistoryStatus string

const (
	HistoryOutgoing HistoryStatus = "outgoing"
	HistoryAnswered HistoryStatus = "answered"
	HistoryMissed   HistoryStatus = "missed"
	HistoryRejected HistoryStatus = "rejected"
)

// CallHistoryEntry is one user's log line for one call. Two exist per
// call, one under each participant's path, and they are asymmetric: each
// carries the other party's identity.
type CallHistoryEntry struct {
	ID            CallID        `json:"id"`
	ContactName   string        `json:"contactName"`
	ContactAvatar string        `json:"contactAvatar"`
	Date          time.Time     `json:"date"`
	Type          CallType      `json:"type"`
	Status        HistoryStatus `json:"status"`
}

// NewHistoryEntry builds owner's log line for call, pointing at the
// opposite participant.
func NewHistoryEntry(call *CallRecord, owner UserID, status HistoryStatus) CallHistoryEntry {
	contact := call.Other(owner)
	return CallHistoryEntry{
		ID:            call.ID,
		ContactName:   contact.DisplayName,
		ContactAvatar: contact.AvatarURL,
		Date:          time.Now(),
		Type:          call.Type,
		Status:        status,
	}
}

// RecipientHistoryStatus translates a terminal transition into the
// recipient's log vocabulary. prior is the status the call held before the
// terminal write landed.
func RecipientHistoryStatus(final, prior CallStatus) HistoryStatus {
	switch {
	case final == StatusRejected:
		return HistoryRejected
	case prior == StatusConnected:
		return HistoryAnswered
	default:
		// Torn down before pickup, by either side.
		return HistoryMissed
	}
}
