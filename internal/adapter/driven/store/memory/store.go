package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
)

// Store is an in-process document store with the same observable contract
// as the hosted one: path-addressed records, field-level status writes,
// and subscriptions that deliver the current state immediately and again
// after every mutation. It backs local development and every service
// test.
type Store struct {
	mu sync.Mutex

	calls    map[domain.CallID]domain.CallRecord
	history  map[domain.UserID]map[domain.CallID]domain.CallHistoryEntry
	users    map[domain.UserID]domain.AppUser
	friends  map[domain.UserID]map[domain.UserID]domain.Friend
	requests map[domain.UserID]map[domain.UserID]domain.FriendRequest
	messages []domain.Message

	nextSub  int
	callSubs map[domain.CallID]map[int]*subscriber[*domain.CallRecord]
	collSubs map[int]*subscriber[[]domain.CallRecord]
}

type subscriber[T any] struct {
	fn     func(T)
	closed atomic.Bool

	mu       sync.Mutex
	queue    []T
	draining bool
}

func (s *subscriber[T]) enqueue(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
}

// drain delivers queued snapshots in order. A single goroutine drains at
// a time; snapshots enqueued meanwhile, including by the callback's own
// nested writes, are picked up by the active drainer. A subscriber
// therefore never observes snapshots out of commit order.
func (s *subscriber[T]) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		v := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		if !s.closed.Load() {
			s.fn(v)
		}
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

type drainer interface{ drain() }

func drainAll(ds []drainer) {
	for _, d := range ds {
		d.drain()
	}
}

func New() *Store {
	return &Store{
		calls:    make(map[domain.CallID]domain.CallRecord),
		history:  make(map[domain.UserID]map[domain.CallID]domain.CallHistoryEntry),
		users:    make(map[domain.UserID]domain.AppUser),
		friends:  make(map[domain.UserID]map[domain.UserID]domain.Friend),
		requests: make(map[domain.UserID]map[domain.UserID]domain.FriendRequest),
		callSubs: make(map[domain.CallID]map[int]*subscriber[*domain.CallRecord]),
		collSubs: make(map[int]*subscriber[[]domain.CallRecord]),
	}
}

// ---- CallStore ----

func (s *Store) CreateCall(ctx context.Context, rec *domain.CallRecord) (domain.CallID, error) {
	s.mu.Lock()
	rec.ID = domain.NewCallID()
	rec.CreatedAt = time.Now()
	s.calls[rec.ID] = *rec
	ds := s.enqueueLocked(rec.ID, rec)
	s.mu.Unlock()

	drainAll(ds)
	return rec.ID, nil
}

// UpdateCallStatus is a conditional, field-level write: only status is
// touched, and only when the stored status matches expect.
func (s *Store) UpdateCallStatus(ctx context.Context, id domain.CallID, expect, next domain.CallStatus) error {
	s.mu.Lock()
	rec, ok := s.calls[id]
	if !ok {
		s.mu.Unlock()
		return port.ErrRecordNotFound
	}
	if rec.Status != expect {
		s.mu.Unlock()
		return port.ErrStatusConflict
	}
	rec.Status = next
	s.calls[id] = rec
	ds := s.enqueueLocked(id, &rec)
	s.mu.Unlock()

	drainAll(ds)
	return nil
}

func (s *Store) GetCall(ctx context.Context, id domain.CallID) (*domain.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.calls[id]
	if !ok {
		return nil, port.ErrRecordNotFound
	}
	return &rec, nil
}

func (s *Store) SubscribeCall(id domain.CallID, fn func(*domain.CallRecord)) port.Unsubscribe {
	sub := &subscriber[*domain.CallRecord]{fn: fn}

	s.mu.Lock()
	key := s.nextSub
	s.nextSub++
	if s.callSubs[id] == nil {
		s.callSubs[id] = make(map[int]*subscriber[*domain.CallRecord])
	}
	s.callSubs[id][key] = sub
	var initial *domain.CallRecord
	if rec, ok := s.calls[id]; ok {
		initial = &rec
	}
	// Current state first, mutations after. A missing record is
	// delivered as nil so absence is distinguishable.
	sub.enqueue(initial)
	s.mu.Unlock()

	sub.drain()

	return func() {
		sub.closed.Store(true)
		s.mu.Lock()
		delete(s.callSubs[id], key)
		s.mu.Unlock()
	}
}

func (s *Store) SubscribeAllCalls(fn func([]domain.CallRecord)) port.Unsubscribe {
	sub := &subscriber[[]domain.CallRecord]{fn: fn}

	s.mu.Lock()
	key := s.nextSub
	s.nextSub++
	s.collSubs[key] = sub
	sub.enqueue(s.snapshotLocked())
	s.mu.Unlock()

	sub.drain()

	return func() {
		sub.closed.Store(true)
		s.mu.Lock()
		delete(s.collSubs, key)
		s.mu.Unlock()
	}
}

// enqueueLocked snapshots the mutation of id for every interested
// subscriber. The store lock is still held, so per-subscriber queue order
// is commit order. Draining happens after unlock, letting callbacks issue
// further writes without re-entering the store lock.
func (s *Store) enqueueLocked(id domain.CallID, rec *domain.CallRecord) []drainer {
	var ds []drainer
	for _, sub := range s.callSubs[id] {
		r := *rec
		sub.enqueue(&r)
		ds = append(ds, sub)
	}
	if len(s.collSubs) > 0 {
		snapshot := s.snapshotLocked()
		for _, sub := range s.collSubs {
			sub.enqueue(snapshot)
			ds = append(ds, sub)
		}
	}
	return ds
}

func (s *Store) snapshotLocked() []domain.CallRecord {
	snapshot := make([]domain.CallRecord, 0, len(s.calls))
	for _, rec := range s.calls {
		snapshot = append(snapshot, rec)
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
	})
	return snapshot
}

// ---- HistoryStore ----

func (s *Store) WriteHistoryEntry(ctx context.Context, owner domain.UserID, entry domain.CallHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history[owner] == nil {
		s.history[owner] = make(map[domain.CallID]domain.CallHistoryEntry)
	}
	s.history[owner][entry.ID] = entry
	return nil
}

func (s *Store) ListHistory(ctx context.Context, owner domain.UserID) ([]domain.CallHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.CallHistoryEntry, 0, len(s.history[owner]))
	for _, e := range s.history[owner] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	return entries, nil
}

// ---- UserStore ----

func (s *Store) SaveUser(ctx context.Context, user *domain.AppUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.UID] = *user
	return nil
}

func (s *Store) GetUser(ctx context.Context, uid domain.UserID) (*domain.AppUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uid]
	if !ok {
		return nil, port.ErrRecordNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.AppUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, port.ErrRecordNotFound
}

func (s *Store) GetUserByPublicID(ctx context.Context, publicID string) (*domain.AppUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PublicID == publicID {
			user := u
			return &user, nil
		}
	}
	return nil, port.ErrRecordNotFound
}

// ---- FriendStore ----

func (s *Store) SaveRequest(ctx context.Context, to domain.UserID, req domain.FriendRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requests[to] == nil {
		s.requests[to] = make(map[domain.UserID]domain.FriendRequest)
	}
	s.requests[to][req.UID] = req
	return nil
}

func (s *Store) ListRequests(ctx context.Context, owner domain.UserID) ([]domain.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := make([]domain.FriendRequest, 0, len(s.requests[owner]))
	for _, r := range s.requests[owner] {
		reqs = append(reqs, r)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].UID < reqs[j].UID })
	return reqs, nil
}

func (s *Store) DeleteRequest(ctx context.Context, owner, from domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests[owner], from)
	return nil
}

func (s *Store) AddFriend(ctx context.Context, owner domain.UserID, friend domain.Friend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.friends[owner] == nil {
		s.friends[owner] = make(map[domain.UserID]domain.Friend)
	}
	s.friends[owner][friend.UID] = friend
	return nil
}

func (s *Store) ListFriends(ctx context.Context, owner domain.UserID) ([]domain.Friend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	friends := make([]domain.Friend, 0, len(s.friends[owner]))
	for _, f := range s.friends[owner] {
		friends = append(friends, f)
	}
	sort.Slice(friends, func(i, j int) bool { return friends[i].UID < friends[j].UID })
	return friends, nil
}

func (s *Store) RemoveFriend(ctx context.Context, owner, friend domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.friends[owner], friend)
	return nil
}

// ---- MessageRepository ----

func (s *Store) Save(ctx context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *Store) ListConversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs []domain.Message
	for _, m := range s.messages {
		if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}
