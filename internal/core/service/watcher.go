package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
)

// IncomingCallWatcher runs for the lifetime of an authenticated session.
// It is level-triggered: every collection snapshot is re-scanned from
// scratch, O(collection size) per delivery, rather than diffed against
// the previous one. Fine at this call volume; revisit if the collection
// grows unbounded.
type IncomingCallWatcher struct {
	user    domain.Identity
	calls   port.CallStore
	svc     *CallService
	gateway port.RealTimeGateway

	mu       sync.Mutex
	ctx      context.Context
	surfaced domain.CallID
	rung     map[domain.CallID]struct{}
	unsub    port.Unsubscribe
}

func NewIncomingCallWatcher(user domain.Identity, calls port.CallStore, svc *CallService, gateway port.RealTimeGateway) *IncomingCallWatcher {
	return &IncomingCallWatcher{
		user:    user,
		calls:   calls,
		svc:     svc,
		gateway: gateway,
		rung:    make(map[domain.CallID]struct{}),
	}
}

// Start subscribes to the full call collection. The subscription lives
// until Stop, which must be called on sign-out.
func (w *IncomingCallWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.unsub != nil {
		w.mu.Unlock()
		return
	}
	w.ctx = ctx
	w.mu.Unlock()

	unsub := w.calls.SubscribeAllCalls(w.handleSnapshot)

	w.mu.Lock()
	w.unsub = unsub
	w.mu.Unlock()
	log.Info().Str("uid", w.user.UID.String()).Msg("Incoming call watcher started")
}

// Current returns the one surfaced incoming call, if any. At most one is
// surfaced even if several calls address this user simultaneously.
func (w *IncomingCallWatcher) Current() (domain.CallID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.surfaced, w.surfaced != ""
}

// Stop tears the subscription down and clears any surfaced prompt.
func (w *IncomingCallWatcher) Stop() {
	w.mu.Lock()
	unsub := w.unsub
	w.unsub = nil
	w.surfaced = ""
	w.rung = make(map[domain.CallID]struct{})
	w.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// handleSnapshot decides under the lock, then performs store writes and
// gateway pushes after releasing it: snapshot delivery may be synchronous
// with the mutation, so a write issued here can re-enter this handler.
func (w *IncomingCallWatcher) handleSnapshot(recs []domain.CallRecord) {
	w.mu.Lock()
	ctx := w.ctx
	if ctx == nil {
		w.mu.Unlock()
		return
	}

	pending := make(map[domain.CallID]struct{})
	var found *domain.CallRecord
	for i := range recs {
		call := recs[i]
		if call.Recipient.UID != w.user.UID {
			continue
		}
		if call.Status != domain.StatusInitiating && call.Status != domain.StatusRinging {
			continue
		}
		pending[call.ID] = struct{}{}
		if found == nil {
			found = &call
		}
	}

	// Drop ring guards for calls that left the pending states; the map
	// stays bounded by the number of currently pending calls.
	for id := range w.rung {
		if _, ok := pending[id]; !ok {
			delete(w.rung, id)
		}
	}

	// Guarded so redundant deliveries of the same snapshot issue the
	// ringing write at most once.
	ring := false
	if found != nil && found.Status == domain.StatusInitiating {
		if _, done := w.rung[found.ID]; !done {
			w.rung[found.ID] = struct{}{}
			ring = true
		}
	}

	var cleared domain.CallID
	var surface *domain.CallRecord
	switch {
	case found == nil && w.surfaced != "":
		// The surfaced call was answered elsewhere, cancelled by the
		// caller or went terminal; withdraw the prompt.
		cleared = w.surfaced
		w.surfaced = ""
	case found != nil && found.ID != w.surfaced:
		w.surfaced = found.ID
		surface = found
	}
	w.mu.Unlock()

	if cleared != "" {
		if err := w.gateway.NotifyCallCleared(ctx, w.user.UID, cleared); err != nil {
			log.Warn().Err(err).Str("call_id", cleared.String()).Msg("Failed to clear incoming call prompt")
		}
	}
	if surface != nil {
		if err := w.gateway.NotifyIncomingCall(ctx, w.user.UID, surface); err != nil {
			log.Warn().Err(err).Str("call_id", surface.ID.String()).Msg("Failed to surface incoming call")
		}
	}
	// The ring write goes last: its snapshot can be redelivered
	// synchronously and the prompt must already be surfaced by then.
	if ring {
		if err := w.svc.MarkRinging(ctx, found.ID); err != nil {
			// Transient store failure; let the next snapshot retry.
			w.mu.Lock()
			delete(w.rung, found.ID)
			w.mu.Unlock()
			log.Warn().Err(err).Str("call_id", found.ID.String()).Msg("Failed to mark call ringing")
		}
	}
}

// Accept answers the surfaced call and dismisses the prompt; the caller's
// side observes the transition through its own subscription.
func (w *IncomingCallWatcher) Accept(ctx context.Context, call *domain.CallRecord) error {
	if err := w.svc.Accept(ctx, call, w.user); err != nil {
		return err
	}
	w.dismiss(call.ID)
	return nil
}

// Reject declines the surfaced call and dismisses the prompt.
func (w *IncomingCallWatcher) Reject(ctx context.Context, call *domain.CallRecord) error {
	if err := w.svc.Reject(ctx, call, w.user); err != nil {
		return err
	}
	w.dismiss(call.ID)
	return nil
}

func (w *IncomingCallWatcher) dismiss(id domain.CallID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.surfaced == id {
		w.surfaced = ""
	}
}
