package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
)

// ErrUnknownCallType rejects call creation with a type outside the
// audio/video vocabulary.
var ErrUnknownCallType = errors.New("unknown call type")

// CallService owns the call lifecycle: it is the only writer of status
// transitions and of the two per-participant history entries. Transition
// legality is enforced here, not in the store; illegal or stale requests
// are silently dropped because they can arise from benign races (both
// parties ending at the same instant).
type CallService struct {
	calls   port.CallStore
	history port.HistoryStore
}

func NewCallService(calls port.CallStore, history port.HistoryStore) *CallService {
	return &CallService{
		calls:   calls,
		history: history,
	}
}

// StartCall creates the shared record in "initiating" and both parties'
// provisional history entries: the caller's as outgoing, the recipient's
// as missed until answered.
func (s *CallService) StartCall(ctx context.Context, caller domain.Identity, recipient domain.Participant, t domain.CallType) (domain.CallID, error) {
	if !t.Valid() {
		return "", ErrUnknownCallType
	}
	rec := &domain.CallRecord{
		Type:      t,
		Caller:    caller.Participant(),
		Recipient: recipient,
		Status:    domain.StatusInitiating,
	}

	id, err := s.calls.CreateCall(ctx, rec)
	if err != nil {
		return "", err
	}

	s.writeHistory(ctx, rec, rec.Caller.UID, domain.HistoryOutgoing)
	s.writeHistory(ctx, rec, rec.Recipient.UID, domain.HistoryMissed)

	log.Info().
		Str("call_id", id.String()).
		Str("caller", caller.UID.String()).
		Str("recipient", recipient.UID.String()).
		Str("type", string(t)).
		Msg("Call initiated")
	return id, nil
}

// Accept is the recipient picking up. The recipient's own history entry
// flips to answered immediately.
func (s *CallService) Accept(ctx context.Context, call *domain.CallRecord, actor domain.Identity) error {
	ok, err := s.transition(ctx, call, domain.StatusConnecting)
	if err != nil || !ok {
		return err
	}
	s.writeHistory(ctx, call, actor.UID, domain.HistoryAnswered)
	return nil
}

// Reject is the recipient declining before pickup.
func (s *CallService) Reject(ctx context.Context, call *domain.CallRecord, actor domain.Identity) error {
	ok, err := s.transition(ctx, call, domain.StatusRejected)
	if err != nil || !ok {
		return err
	}
	s.writeHistory(ctx, call, call.Recipient.UID, domain.HistoryRejected)
	s.writeHistory(ctx, call, call.Caller.UID, domain.HistoryOutgoing)
	return nil
}

// Hangup tears the call down from either side. An unanswered call hung up
// by the caller resolves to ended; torn down by anyone else it resolves
// to missed. Both history entries are rewritten to the final view.
func (s *CallService) Hangup(ctx context.Context, call *domain.CallRecord, actor domain.Identity) error {
	final := domain.HangupStatus(call.Status, call.IsCaller(actor.UID))

	ok, err := s.transition(ctx, call, final)
	if err != nil || !ok {
		return err
	}

	s.writeHistory(ctx, call, call.Caller.UID, domain.HistoryOutgoing)
	s.writeHistory(ctx, call, call.Recipient.UID, domain.RecipientHistoryStatus(final, call.Status))
	return nil
}

// MarkRinging is the recipient-side auto-transition issued by the
// incoming-call watcher.
func (s *CallService) MarkRinging(ctx context.Context, id domain.CallID) error {
	err := s.calls.UpdateCallStatus(ctx, id, domain.StatusInitiating, domain.StatusRinging)
	if errors.Is(err, port.ErrStatusConflict) {
		return nil
	}
	return err
}

// MarkConnected flips connecting to connected once the local media step
// has resolved. Both sides may race to issue it; the loser's conflict is
// dropped.
func (s *CallService) MarkConnected(ctx context.Context, call *domain.CallRecord) error {
	if call.Status != domain.StatusConnecting {
		return nil
	}
	_, err := s.transition(ctx, call, domain.StatusConnected)
	return err
}

// History returns owner's call log, most recent first.
func (s *CallService) History(ctx context.Context, owner domain.UserID) ([]domain.CallHistoryEntry, error) {
	return s.history.ListHistory(ctx, owner)
}

// transition issues a conditional status write using the locally observed
// status as the precondition. Returns false without error when the edge
// is illegal or the precondition lost a race; the next subscription
// delivery is ground truth either way.
func (s *CallService) transition(ctx context.Context, call *domain.CallRecord, next domain.CallStatus) (bool, error) {
	if !domain.CanTransition(call.Status, next) {
		log.Debug().
			Str("call_id", call.ID.String()).
			Str("from", string(call.Status)).
			Str("to", string(next)).
			Msg("Ignoring illegal transition")
		return false, nil
	}

	err := s.calls.UpdateCallStatus(ctx, call.ID, call.Status, next)
	if errors.Is(err, port.ErrStatusConflict) {
		log.Debug().
			Str("call_id", call.ID.String()).
			Str("from", string(call.Status)).
			Str("to", string(next)).
			Msg("Transition lost race, dropping")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// History writes are advisory: a failed upsert is logged and the call
// proceeds, the entry converges on the next lifecycle event.
func (s *CallService) writeHistory(ctx context.Context, call *domain.CallRecord, owner domain.UserID, status domain.HistoryStatus) {
	entry := domain.NewHistoryEntry(call, owner, status)
	if err := s.history.WriteHistoryEntry(ctx, owner, entry); err != nil {
		log.Warn().Err(err).
			Str("call_id", call.ID.String()).
			Str("owner", owner.String()).
			Msg("Failed to write call history entry")
	}
}
