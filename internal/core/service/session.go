package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
)

// CallSession is one participant's view of an active or ringing call. It
// subscribes to the single record for the lifetime of the call screen and
// reacts to whatever the store delivers: a terminal status or an absent
// record both end the session, releasing any acquired device capture on
// the way out. Local writes are never trusted optimistically; the session
// only advances on delivered snapshots.
type CallSession struct {
	user    domain.Identity
	callID  domain.CallID
	calls   port.CallStore
	svc     *CallService
	media   port.MediaCapture
	gateway port.RealTimeGateway
	log     zerolog.Logger

	mu            sync.Mutex
	ctx           context.Context
	current       *domain.CallRecord
	lastStatus    domain.CallStatus
	capture       port.Capture
	captureDenied bool
	closed        bool
	unsub         port.Unsubscribe
}

func NewCallSession(user domain.Identity, callID domain.CallID, calls port.CallStore, svc *CallService, media port.MediaCapture, gateway port.RealTimeGateway) *CallSession {
	return &CallSession{
		user:    user,
		callID:  callID,
		calls:   calls,
		svc:     svc,
		media:   media,
		gateway: gateway,
		log:     log.With().Str("call_id", callID.String()).Str("uid", user.UID.String()).Logger(),
	}
}

// Start subscribes to the call record. The current state is delivered
// immediately, so a never-created id surfaces as not-found right away.
func (s *CallSession) Start(ctx context.Context) {
	s.mu.Lock()
	if s.unsub != nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.ctx = ctx
	s.mu.Unlock()

	unsub := s.calls.SubscribeCall(s.callID, s.handleSnapshot)

	s.mu.Lock()
	if s.closed {
		// Torn down during the first synchronous delivery.
		s.mu.Unlock()
		unsub()
		return
	}
	s.unsub = unsub
	s.mu.Unlock()
}

// Current returns the last delivered record, nil before first delivery.
func (s *CallSession) Current() *domain.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CaptureDenied reports whether the device layer refused capture. The
// call keeps running without the stream; the UI shows an advisory.
func (s *CallSession) CaptureDenied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captureDenied
}

// Hangup issues the terminal write for this actor. The session itself is
// torn down by the resulting snapshot, not here: if the write fails, the
// record's next delivery remains ground truth.
func (s *CallSession) Hangup(ctx context.Context) error {
	s.mu.Lock()
	rec := s.current
	s.mu.Unlock()
	if rec == nil {
		return nil
	}
	snapshot := *rec
	return s.svc.Hangup(ctx, &snapshot, s.user)
}

// Close releases the subscription and any acquired capture. Idempotent;
// called on every exit path including navigation away from the screen.
func (s *CallSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

func (s *CallSession) teardownLocked() {
	if s.closed {
		return
	}
	s.closed = true
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	if s.capture != nil {
		s.capture.Release()
		s.capture = nil
	}
}

// handleSnapshot decides under the lock and performs follow-up store
// writes after releasing it, since delivery can be synchronous with the
// mutation and a nested write would re-enter this handler.
func (s *CallSession) handleSnapshot(rec *domain.CallRecord) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx

	if rec == nil {
		// The call never existed or was deleted; distinct from a normal
		// termination. Teardown first so this fires exactly once.
		s.teardownLocked()
		s.mu.Unlock()
		s.log.Warn().Msg("Call record not found")
		if err := s.gateway.NotifyCallNotFound(ctx, s.user.UID, s.callID); err != nil {
			s.log.Warn().Err(err).Msg("Failed to deliver call-not-found notice")
		}
		return
	}

	prev := s.lastStatus
	s.current = rec
	s.lastStatus = rec.Status

	if rec.Status.Terminal() {
		if rec.Status == prev {
			s.mu.Unlock()
			return
		}
		s.teardownLocked()
		s.mu.Unlock()
		s.log.Info().Str("status", string(rec.Status)).Msg("Call reached terminal status")
		if err := s.gateway.NotifyCallEnded(ctx, s.user.UID, s.callID, rec.Status); err != nil {
			s.log.Warn().Err(err).Msg("Failed to deliver call-ended notice")
		}
		return
	}

	needCapture := rec.Type == domain.CallVideo && rec.Status.Active() &&
		s.capture == nil && !s.captureDenied
	needConnect := rec.Status == domain.StatusConnecting
	s.mu.Unlock()

	if needCapture {
		s.acquireCapture(ctx, rec.Type)
	}
	if needConnect {
		snapshot := *rec
		if err := s.svc.MarkConnected(ctx, &snapshot); err != nil {
			s.log.Warn().Err(err).Msg("Failed to mark call connected")
		}
	}
}

// acquireCapture asks the device layer for streams. A refusal is recorded
// as a capability flag, never a teardown.
func (s *CallSession) acquireCapture(ctx context.Context, t domain.CallType) {
	cap, err := s.media.Acquire(ctx, t)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case errors.Is(err, port.ErrPermissionDenied):
		s.captureDenied = true
		s.log.Warn().Msg("Device access refused, continuing without local media")
	case err != nil:
		s.captureDenied = true
		s.log.Warn().Err(err).Msg("Media capture failed, continuing without video")
	case s.closed:
		// Session ended while the device was opening.
		cap.Release()
	case s.capture != nil:
		// A concurrent delivery already acquired; keep the first handle
		// so teardown releases exactly what the session owns.
		cap.Release()
	default:
		s.capture = cap
	}
}
