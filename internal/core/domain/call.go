package domain

import "time"

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// Valid reports whether t is a known call type. Callers accepting a type
// from the wire must check it before creating a record.
func (t CallType) Valid() bool {
	return t == CallAudio || t == CallVideo
}

// CallStatus is the lifecycle state of a shared call record. Both
// participants write this field; nothing else on the record is mutated
// after creation.
type CallStatus string

const (
	StatusInitiating CallStatus = "initiating"
	StatusRinging    CallStatus = "ringing"
	StatusConnecting CallStatus = "connecting"
	StatusConnected  CallStatus = "connected"
	StatusEnded      CallStatus = "ended"
	StatusRejected   CallStatus = "rejected"
	StatusMissed     CallStatus = "missed"
)

// Terminal reports whether no further transition is defined from s.
func (s CallStatus) Terminal() bool {
	return s == StatusEnded || s == StatusRejected || s == StatusMissed
}

// Active reports whether the call is in a state where media should flow.
func (s CallStatus) Active() bool {
	return s == StatusConnecting || s == StatusConnected
}

// Participant is an identity snapshot captured at call creation. Profile
// edits after creation do not propagate here.
type Participant struct {
	UID         UserID `json:"uid"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// CallRecord is the single shared document for one call. Exactly one
// exists per call; every participant mutates the same record by id.
type CallRecord struct {
	ID        CallID      `json:"id"`
	Type      CallType    `json:"type"`
	Caller    Participant `json:"caller"`
	Recipient Participant `json:"recipient"`
	Status    CallStatus  `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Other returns the participant opposite to uid.
func (c *CallRecord) Other(uid UserID) Participant {
	if c.Caller.UID == uid {
		return c.Recipient
	}
	return c.Caller
}

// IsCaller reports whether uid originated the call.
func (c *CallRecord) IsCaller(uid UserID) bool {
	return c.Caller.UID == uid
}

// CanTransition reports whether from -> to is a legal edge. Terminal
// states permit nothing; everything else follows the signaling table.
func CanTransition(from, to CallStatus) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusRinging:
		return from == StatusInitiating
	case StatusConnecting:
		return from == StatusInitiating || from == StatusRinging
	case StatusConnected:
		return from == StatusInitiating || from == StatusRinging || from == StatusConnecting
	case StatusRejected:
		return from == StatusInitiating || from == StatusRinging
	case StatusEnded, StatusMissed:
		return true // any non-terminal state can be torn down
	default:
		return false
	}
}

// HangupStatus resolves which terminal status a hang-up produces.
// An unanswered call torn down by the caller is "ended"; torn down by
// anyone else it is "missed". Once answered it is always "ended".
func HangupStatus(current CallStatus, actorIsCaller bool) CallStatus {
	switch current {
	case StatusInitiating, StatusRinging, StatusConnecting:
		if actorIsCaller {
			return StatusEnded
		}
		return StatusMissed
	default:
		return StatusEnded
	}
}
