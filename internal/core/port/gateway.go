package port

import (
	"context"

	"github.com/stayconnect/stayconnect/internal/core/domain"
)

// RealTimeGateway pushes events to a user's connected clients.
type RealTimeGateway interface {
	DeliverMessage(ctx context.Context, msg domain.Message) error

	// NotifyIncomingCall surfaces the incoming-call prompt on every
	// client userID has connected.
	NotifyIncomingCall(ctx context.Context, userID domain.UserID, call *domain.CallRecord) error

	// NotifyCallCleared withdraws a previously surfaced prompt.
	NotifyCallCleared(ctx context.Context, userID domain.UserID, callID domain.CallID) error

	// NotifyCallEnded tells an active call screen the call reached a
	// terminal status.
	NotifyCallEnded(ctx context.Context, userID domain.UserID, callID domain.CallID, status domain.CallStatus) error

	// NotifyCallNotFound tells a call screen the subscribed record does
	// not exist. Distinct from NotifyCallEnded.
	NotifyCallNotFound(ctx context.Context, userID domain.UserID, callID domain.CallID) error
}
