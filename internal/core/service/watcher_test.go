package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stayconnect/stayconnect/internal/adapter/driven/store/memory"
	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
)

// countingStore counts conditional status writes on top of the memory
// store.
type countingStore struct {
	*memory.Store
	mu      sync.Mutex
	updates int
}

func (s *countingStore) UpdateCallStatus(ctx context.Context, id domain.CallID, expect, next domain.CallStatus) error {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	return s.Store.UpdateCallStatus(ctx, id, expect, next)
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func TestWatcherRingsIncomingCall(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hist := newRecordingHistory()
	svc := NewCallService(store, hist)
	gw := &fakeGateway{}

	w := NewIncomingCallWatcher(bob, store, svc, gw)
	w.Start(ctx)
	defer w.Stop()

	id, err := svc.StartCall(ctx, alice, bob.Participant(), domain.CallVideo)
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	rec, _ := store.GetCall(ctx, id)
	if rec.Status != domain.StatusRinging {
		t.Errorf("status = %s, want ringing after watcher pass", rec.Status)
	}
	if got, ok := w.Current(); !ok || got != id {
		t.Errorf("Current() = %v/%v, want surfaced %s", got, ok, id)
	}
	if len(gw.incoming) == 0 || gw.incoming[0] != id {
		t.Error("incoming call prompt was not surfaced")
	}
}

// Redundant deliveries of the same initiating snapshot must issue the
// ringing write at most once.
func TestWatcherRingWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memory.New()}
	hist := newRecordingHistory()
	svc := NewCallService(store, hist)
	gw := &fakeGateway{}

	rec := domain.CallRecord{
		ID:        "call-1",
		Type:      domain.CallAudio,
		Caller:    alice.Participant(),
		Recipient: bob.Participant(),
		Status:    domain.StatusInitiating,
	}
	seeded := &rec
	if _, err := store.Store.CreateCall(ctx, seeded); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}

	w := NewIncomingCallWatcher(bob, store, svc, gw)
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	stale := *seeded
	stale.Status = domain.StatusInitiating
	for i := 0; i < 5; i++ {
		w.handleSnapshot([]domain.CallRecord{stale})
	}

	if n := store.count(); n != 1 {
		t.Errorf("%d ringing writes issued for 5 identical deliveries, want 1", n)
	}
}

// Ring guards must not accumulate over the watcher's lifetime; once a
// call leaves the pending states the scan drops its entry.
func TestWatcherPrunesRingGuard(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hist := newRecordingHistory()
	svc := NewCallService(store, hist)
	gw := &fakeGateway{}

	w := NewIncomingCallWatcher(bob, store, svc, gw)
	w.Start(ctx)
	defer w.Stop()

	id, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallAudio)

	w.mu.Lock()
	_, tracked := w.rung[id]
	w.mu.Unlock()
	if !tracked {
		t.Fatal("ring guard not recorded while the call is pending")
	}

	rec, _ := store.GetCall(ctx, id)
	if err := svc.Hangup(ctx, rec, alice); err != nil {
		t.Fatalf("Hangup: %v", err)
	}

	w.mu.Lock()
	n := len(w.rung)
	w.mu.Unlock()
	if n != 0 {
		t.Errorf("ring guard holds %d entries after teardown, want 0", n)
	}
}

func TestWatcherIgnoresCallsForOthers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hist := newRecordingHistory()
	svc := NewCallService(store, hist)
	gw := &fakeGateway{}

	carol := domain.Identity{UID: "carol", DisplayName: "Carol"}
	w := NewIncomingCallWatcher(carol, store, svc, gw)
	w.Start(ctx)
	defer w.Stop()

	id, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallAudio)

	rec, _ := store.GetCall(ctx, id)
	if rec.Status != domain.StatusInitiating {
		t.Errorf("bystander watcher moved the call to %s", rec.Status)
	}
	if _, ok := w.Current(); ok {
		t.Error("bystander watcher surfaced a call not addressed to it")
	}
}

func TestWatcherClearsPromptOnRemoteTeardown(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hist := newRecordingHistory()
	svc := NewCallService(store, hist)
	gw := &fakeGateway{}

	w := NewIncomingCallWatcher(bob, store, svc, gw)
	w.Start(ctx)
	defer w.Stop()

	id, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallVideo)
	if _, ok := w.Current(); !ok {
		t.Fatal("call was not surfaced")
	}

	// Caller cancels before pickup.
	rec, _ := store.GetCall(ctx, id)
	if err := svc.Hangup(ctx, rec, alice); err != nil {
		t.Fatalf("Hangup: %v", err)
	}

	if _, ok := w.Current(); ok {
		t.Error("prompt still surfaced after remote teardown")
	}
	if len(gw.cleared) != 1 || gw.cleared[0] != id {
		t.Errorf("cleared notifications = %v, want exactly one for %s", gw.cleared, id)
	}
}

func TestWatcherSurfacesAtMostOneCall(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hist := newRecordingHistory()
	svc := NewCallService(store, hist)
	gw := &fakeGateway{}

	w := NewIncomingCallWatcher(bob, store, svc, gw)
	w.Start(ctx)
	defer w.Stop()

	carol := domain.Identity{UID: "carol", DisplayName: "Carol"}
	first, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallAudio)
	svc.StartCall(ctx, carol, bob.Participant(), domain.CallAudio)

	got, ok := w.Current()
	if !ok {
		t.Fatal("nothing surfaced")
	}
	if got != first {
		t.Errorf("surfaced %s, want the earliest matching call %s", got, first)
	}
}

func TestWatcherStopEndsDelivery(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hist := newRecordingHistory()
	svc := NewCallService(store, hist)
	gw := &fakeGateway{}

	w := NewIncomingCallWatcher(bob, store, svc, gw)
	w.Start(ctx)
	w.Stop()

	id, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallAudio)

	rec, _ := store.GetCall(ctx, id)
	if rec.Status != domain.StatusInitiating {
		t.Errorf("stopped watcher still issued writes, status = %s", rec.Status)
	}
	if _, ok := w.Current(); ok {
		t.Error("stopped watcher surfaced a call")
	}
}

// Accept through the watcher answers the surfaced call and dismisses the
// prompt locally.
func TestWatcherAccept(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	hist := newRecordingHistory()
	svc := NewCallService(store, hist)
	gw := &fakeGateway{}

	w := NewIncomingCallWatcher(bob, store, svc, gw)
	w.Start(ctx)
	defer w.Stop()

	id, _ := svc.StartCall(ctx, alice, bob.Participant(), domain.CallVideo)

	rec, _ := store.GetCall(ctx, id)
	if err := w.Accept(ctx, rec); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	rec, _ = store.GetCall(ctx, id)
	if rec.Status != domain.StatusConnecting {
		t.Errorf("status = %s, want connecting", rec.Status)
	}
	if _, ok := w.Current(); ok {
		t.Error("prompt still surfaced after accept")
	}
	if got := hist.status(bob.UID, id); got != domain.HistoryAnswered {
		t.Errorf("recipient history = %s, want answered", got)
	}
}

var _ port.CallStore = (*countingStore)(nil)
