package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
)

const (
	callKeyPrefix  = "calls:"
	callIndexKey   = "calls:index"
	collectionChan = "calls.events"
	historyPrefix  = "callHistory:"
)

// transitionScript is the conditional status write: the transition lands
// only if the stored status still equals the expected prior status.
// Returns -1 when the record is missing, 0 on a failed precondition.
var transitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then return -1 end
if cur ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
return 1
`)

// Store adapts the hosted call collection onto redis: one hash per call
// record so the status write is field-level and never disturbs siblings,
// plus pub/sub channels for per-record and collection subscriptions.
type Store struct {
	client *redis.Client
	ctx    context.Context
}

func New(ctx context.Context, client *redis.Client) *Store {
	return &Store{client: client, ctx: ctx}
}

func callKey(id domain.CallID) string {
	return callKeyPrefix + id.String()
}

func recordChan(id domain.CallID) string {
	return collectionChan + ":" + id.String()
}

// ---- CallStore ----

func (s *Store) CreateCall(ctx context.Context, rec *domain.CallRecord) (domain.CallID, error) {
	rec.ID = domain.NewCallID()
	rec.CreatedAt = time.Now()

	fields, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, callKey(rec.ID), fields)
	pipe.SAdd(ctx, callIndexKey, rec.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return "", unavailable(err)
	}

	s.publish(ctx, rec)
	return rec.ID, nil
}

func (s *Store) UpdateCallStatus(ctx context.Context, id domain.CallID, expect, next domain.CallStatus) error {
	res, err := transitionScript.Run(ctx, s.client, []string{callKey(id)}, string(expect), string(next)).Int()
	if err != nil {
		return unavailable(err)
	}
	switch res {
	case -1:
		return port.ErrRecordNotFound
	case 0:
		return port.ErrStatusConflict
	}

	rec, err := s.GetCall(ctx, id)
	if err != nil {
		return err
	}
	s.publish(ctx, rec)
	return nil
}

func (s *Store) GetCall(ctx context.Context, id domain.CallID) (*domain.CallRecord, error) {
	fields, err := s.client.HGetAll(ctx, callKey(id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, port.ErrRecordNotFound
	}
	return decodeRecord(fields)
}

func (s *Store) SubscribeCall(id domain.CallID, fn func(*domain.CallRecord)) port.Unsubscribe {
	var closed atomic.Bool
	pubsub := s.client.Subscribe(s.ctx, recordChan(id))

	go func() {
		rec, err := s.GetCall(s.ctx, id)
		if err != nil && !errors.Is(err, port.ErrRecordNotFound) {
			log.Warn().Err(err).Str("call_id", id.String()).Msg("Initial call read failed")
		}
		if !closed.Load() {
			fn(rec) // nil signals absence
		}

		for msg := range pubsub.Channel() {
			rec, err := decodeJSON([]byte(msg.Payload))
			if err != nil {
				log.Warn().Err(err).Str("call_id", id.String()).Msg("Dropping undecodable call event")
				continue
			}
			if closed.Load() {
				return
			}
			fn(rec)
		}
	}()

	return func() {
		closed.Store(true)
		if err := pubsub.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close call subscription")
		}
	}
}

func (s *Store) SubscribeAllCalls(fn func([]domain.CallRecord)) port.Unsubscribe {
	var closed atomic.Bool
	pubsub := s.client.Subscribe(s.ctx, collectionChan)

	deliver := func() {
		snapshot, err := s.listCalls(s.ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Collection snapshot read failed")
			return
		}
		if !closed.Load() {
			fn(snapshot)
		}
	}

	go func() {
		deliver()
		for range pubsub.Channel() {
			if closed.Load() {
				return
			}
			// Coarse-grained fan-out: any mutation redelivers the full
			// collection, matching the hosted store's contract.
			deliver()
		}
	}()

	return func() {
		closed.Store(true)
		if err := pubsub.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close collection subscription")
		}
	}
}

func (s *Store) listCalls(ctx context.Context) ([]domain.CallRecord, error) {
	ids, err := s.client.SMembers(ctx, callIndexKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	recs := make([]domain.CallRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetCall(ctx, domain.CallID(id))
		if errors.Is(err, port.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs, nil
}

func (s *Store) publish(ctx context.Context, rec *domain.CallRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Str("call_id", rec.ID.String()).Msg("Failed to encode call event")
		return
	}
	if err := s.client.Publish(ctx, recordChan(rec.ID), payload).Err(); err != nil {
		log.Warn().Err(err).Str("call_id", rec.ID.String()).Msg("Failed to publish record event")
	}
	if err := s.client.Publish(ctx, collectionChan, rec.ID.String()).Err(); err != nil {
		log.Warn().Err(err).Str("call_id", rec.ID.String()).Msg("Failed to publish collection event")
	}
}

// ---- HistoryStore ----

func (s *Store) WriteHistoryEntry(ctx context.Context, owner domain.UserID, entry domain.CallHistoryEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, historyPrefix+owner.String(), entry.ID.String(), payload).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, owner domain.UserID) ([]domain.CallHistoryEntry, error) {
	fields, err := s.client.HGetAll(ctx, historyPrefix+owner.String()).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	entries := make([]domain.CallHistoryEntry, 0, len(fields))
	for _, raw := range fields {
		var e domain.CallHistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	return entries, nil
}

// ---- codec ----

// Records cross the wire as loosely-typed hash fields; decoding happens
// here at the boundary and nothing untyped escapes the adapter.

func encodeRecord(rec *domain.CallRecord) (map[string]interface{}, error) {
	caller, err := json.Marshal(rec.Caller)
	if err != nil {
		return nil, err
	}
	recipient, err := json.Marshal(rec.Recipient)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":        rec.ID.String(),
		"type":      string(rec.Type),
		"status":    string(rec.Status),
		"caller":    caller,
		"recipient": recipient,
		"createdAt": rec.CreatedAt.UnixMilli(),
	}, nil
}

func decodeRecord(fields map[string]string) (*domain.CallRecord, error) {
	rec := &domain.CallRecord{
		ID:     domain.CallID(fields["id"]),
		Type:   domain.CallType(fields["type"]),
		Status: domain.CallStatus(fields["status"]),
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("decode call record: missing id")
	}
	if err := json.Unmarshal([]byte(fields["caller"]), &rec.Caller); err != nil {
		return nil, fmt.Errorf("decode call record caller: %w", err)
	}
	if err := json.Unmarshal([]byte(fields["recipient"]), &rec.Recipient); err != nil {
		return nil, fmt.Errorf("decode call record recipient: %w", err)
	}
	ms, err := strconv.ParseInt(fields["createdAt"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode call record createdAt: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(ms)
	return rec, nil
}

func decodeJSON(payload []byte) (*domain.CallRecord, error) {
	var rec domain.CallRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode call event: %w", err)
	}
	return &rec, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", port.ErrStoreUnavailable, err)
}
