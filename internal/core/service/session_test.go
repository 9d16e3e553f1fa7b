package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
)

type fakeCapture struct {
	mu       sync.Mutex
	released int
}

func (c *fakeCapture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
}

func (c *fakeCapture) releaseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

type fakeMedia struct {
	mu       sync.Mutex
	err      error
	acquired []*fakeCapture
}

func (m *fakeMedia) Acquire(ctx context.Context, t domain.CallType) (port.Capture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c := &fakeCapture{}
	m.acquired = append(m.acquired, c)
	return c, nil
}

func (m *fakeMedia) acquireCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acquired)
}

// gatedMedia parks every Acquire call until gate is closed, so tests can
// hold several acquisitions in flight at once.
type gatedMedia struct {
	mu       sync.Mutex
	gate     chan struct{}
	entered  chan struct{}
	acquired []*fakeCapture
}

func (m *gatedMedia) Acquire(ctx context.Context, t domain.CallType) (port.Capture, error) {
	m.entered <- struct{}{}
	<-m.gate
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &fakeCapture{}
	m.acquired = append(m.acquired, c)
	return c, nil
}

// Subscribing to a call id that was never created delivers not-found
// exactly once and ends the session.
func TestSessionCallNotFound(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newCallFixture(t)
	gw := &fakeGateway{}
	media := &fakeMedia{}

	sess := NewCallSession(alice, "no-such-call", store, svc, media, gw)
	sess.Start(ctx)
	defer sess.Close()

	if len(gw.notFound) != 1 {
		t.Fatalf("not-found notices = %d, want exactly 1", len(gw.notFound))
	}
	if sess.Current() != nil {
		t.Error("session holds a record for a call that does not exist")
	}
}

func TestSessionAcquiresAndReleasesCapture(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newCallFixture(t)
	gw := &fakeGateway{}
	media := &fakeMedia{}

	id, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallVideo)
	svc.MarkRinging(ctx, id)
	rec, _ := store.GetCall(ctx, id)
	svc.Accept(ctx, rec, bob)

	sess := NewCallSession(alice, id, store, svc, media, gw)
	sess.Start(ctx)

	// The initial delivery sees connecting: capture is acquired and the
	// session settles the status into connected.
	if media.acquireCount() != 1 {
		t.Fatalf("capture acquired %d times, want 1", media.acquireCount())
	}
	rec, _ = store.GetCall(ctx, id)
	if rec.Status != domain.StatusConnected {
		t.Errorf("status = %s, want connected", rec.Status)
	}

	// Remote party hangs up; teardown must release the capture.
	rec, _ = store.GetCall(ctx, id)
	if err := svc.Hangup(ctx, rec, bob); err != nil {
		t.Fatalf("Hangup: %v", err)
	}

	if got := media.acquired[0].releaseCount(); got != 1 {
		t.Errorf("capture released %d times, want 1", got)
	}
	if len(gw.ended) != 1 {
		t.Errorf("call-ended notices = %d, want 1", len(gw.ended))
	}
}

// Two deliveries of the same active snapshot can overlap; both pass the
// nil-capture check before either acquisition returns. The session must
// keep one handle and release the other, so nothing leaks past Close.
func TestOverlappingDeliveriesReleaseExtraCapture(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newCallFixture(t)
	gw := &fakeGateway{}
	media := &gatedMedia{gate: make(chan struct{}), entered: make(chan struct{})}

	id, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallVideo)
	svc.MarkRinging(ctx, id)
	rec, _ := store.GetCall(ctx, id)
	svc.Accept(ctx, rec, bob)
	rec, _ = store.GetCall(ctx, id)
	svc.MarkConnected(ctx, rec)

	sess := NewCallSession(alice, id, store, svc, media, gw)
	sess.mu.Lock()
	sess.ctx = ctx
	sess.mu.Unlock()

	rec, _ = store.GetCall(ctx, id)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := *rec
			sess.handleSnapshot(&snap)
		}()
	}
	<-media.entered
	<-media.entered
	close(media.gate)
	wg.Wait()

	if len(media.acquired) != 2 {
		t.Fatalf("acquired %d captures, want the 2 in-flight acquisitions", len(media.acquired))
	}

	sess.Close()
	for i, c := range media.acquired {
		if got := c.releaseCount(); got != 1 {
			t.Errorf("capture %d released %d times, want exactly 1", i, got)
		}
	}
}

func TestSessionCaptureDeniedDegrades(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newCallFixture(t)
	gw := &fakeGateway{}
	media := &fakeMedia{err: port.ErrPermissionDenied}

	id, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallVideo)
	svc.MarkRinging(ctx, id)
	rec, _ := store.GetCall(ctx, id)
	svc.Accept(ctx, rec, bob)

	sess := NewCallSession(alice, id, store, svc, media, gw)
	sess.Start(ctx)
	defer sess.Close()

	if !sess.CaptureDenied() {
		t.Error("capture refusal not recorded")
	}
	// The call survives: still connected, no teardown notice.
	rec, _ = store.GetCall(ctx, id)
	if rec.Status != domain.StatusConnected {
		t.Errorf("status = %s, refusal must not tear the call down", rec.Status)
	}
	if len(gw.ended) != 0 {
		t.Error("capture refusal produced a call-ended notice")
	}
}

func TestSessionCloseStopsDelivery(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newCallFixture(t)
	gw := &fakeGateway{}
	media := &fakeMedia{}

	id, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallAudio)

	sess := NewCallSession(alice, id, store, svc, media, gw)
	sess.Start(ctx)
	sess.Close()

	// A terminal write after Close must not notify through this session.
	rec, _ := store.GetCall(ctx, id)
	if err := svc.Hangup(ctx, rec, alice); err != nil {
		t.Fatalf("Hangup: %v", err)
	}
	if len(gw.ended) != 0 {
		t.Errorf("closed session still delivered %d notices", len(gw.ended))
	}
}

func TestSessionHangupUsesObservedState(t *testing.T) {
	ctx := context.Background()
	store, hist, svc := newCallFixture(t)
	gw := &fakeGateway{}
	media := &fakeMedia{}

	id, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallAudio)
	svc.MarkRinging(ctx, id)

	sess := NewCallSession(alice, id, store, svc, media, gw)
	sess.Start(ctx)

	if err := sess.Hangup(ctx); err != nil {
		t.Fatalf("Hangup: %v", err)
	}

	rec, _ := store.GetCall(ctx, id)
	if rec.Status != domain.StatusEnded {
		t.Errorf("status = %s, want ended", rec.Status)
	}
	if got := hist.status(bob.UID, id); got != domain.HistoryMissed {
		t.Errorf("recipient history = %s, want missed", got)
	}
	if len(gw.ended) != 1 {
		t.Errorf("call-ended notices = %d, want 1 (driven by the snapshot)", len(gw.ended))
	}
}

// Two racing writes: the one landing second loses its precondition and
// both sides converge on the winner's status.
func TestConcurrentWritesConverge(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newCallFixture(t)
	gw := &fakeGateway{}
	media := &fakeMedia{}

	id, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallAudio)
	svc.MarkRinging(ctx, id)
	rec, _ := store.GetCall(ctx, id)
	svc.Accept(ctx, rec, bob)

	// Both parties act on the same connecting snapshot: the caller hangs
	// up while the recipient marks the call connected. The caller's
	// write lands first; the recipient's loses its precondition.
	snapshot, _ := store.GetCall(ctx, id)
	other := *snapshot

	if err := svc.Hangup(ctx, snapshot, alice); err != nil {
		t.Fatalf("Hangup: %v", err)
	}
	if err := svc.MarkConnected(ctx, &other); err != nil {
		t.Fatalf("MarkConnected on a lost race returned %v, want nil", err)
	}

	rec, _ = store.GetCall(ctx, id)
	if rec.Status != domain.StatusEnded {
		t.Fatalf("final status = %s, want the winning write's ended", rec.Status)
	}

	// Both views attach and converge on the winner without crashing.
	callerSess := NewCallSession(alice, id, store, svc, media, gw)
	recipientSess := NewCallSession(bob, id, store, svc, media, gw)
	callerSess.Start(ctx)
	recipientSess.Start(ctx)

	if a, b := callerSess.Current().Status, recipientSess.Current().Status; a != b || a != rec.Status {
		t.Errorf("sessions diverged: caller sees %s, recipient sees %s, store has %s", a, b, rec.Status)
	}
	if len(gw.ended) != 2 {
		t.Errorf("call-ended notices = %d, want one per view", len(gw.ended))
	}
}
