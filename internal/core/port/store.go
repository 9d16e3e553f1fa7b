package port

import (
	"context"
	"errors"

	"github.com/stayconnect/stayconnect/internal/core/domain"
)

var (
	// ErrRecordNotFound means the addressed record does not exist, as
	// opposed to existing with zero-valued fields.
	ErrRecordNotFound = errors.New("record not found")

	// ErrStoreUnavailable means the backing store could not be reached.
	// Callers must not advance local state; the next subscription
	// delivery is ground truth.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrStatusConflict means a conditional status write found a
	// different current status than expected. The state machine treats
	// this the same as an illegal transition.
	ErrStatusConflict = errors.New("status precondition failed")
)

// Unsubscribe stops all further callback delivery for one subscription.
// Safe to call more than once.
type Unsubscribe func()

// CallStore is the typed boundary over the hosted document store's call
// collection. Subscriptions deliver the current state immediately and
// again after every mutation, until unsubscribed. A nil record on a
// single-call subscription signals absence.
type CallStore interface {
	// CreateCall allocates a fresh id, stamps CreatedAt and writes the
	// record atomically, returning the id.
	CreateCall(ctx context.Context, rec *domain.CallRecord) (domain.CallID, error)

	// UpdateCallStatus writes only the status field, and only if the
	// current status equals expect. Sibling fields are never touched.
	// Returns ErrStatusConflict on a failed precondition.
	UpdateCallStatus(ctx context.Context, id domain.CallID, expect, next domain.CallStatus) error

	GetCall(ctx context.Context, id domain.CallID) (*domain.CallRecord, error)

	SubscribeCall(id domain.CallID, fn func(rec *domain.CallRecord)) Unsubscribe

	// SubscribeAllCalls delivers the full collection snapshot on every
	// mutation anywhere in the collection.
	SubscribeAllCalls(fn func(recs []domain.CallRecord)) Unsubscribe
}

// HistoryStore holds per-user call log entries, keyed (owner, call id).
type HistoryStore interface {
	// WriteHistoryEntry upserts owner's entry for entry.ID.
	WriteHistoryEntry(ctx context.Context, owner domain.UserID, entry domain.CallHistoryEntry) error

	// ListHistory returns owner's entries, most recent first.
	ListHistory(ctx context.Context, owner domain.UserID) ([]domain.CallHistoryEntry, error)
}
