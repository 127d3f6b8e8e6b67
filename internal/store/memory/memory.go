// Package memory is an in-process real-time document store. Every write is
// pushed to the live subscriptions of the affected user.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"seara/internal/store"
)

// ErrOffline is returned by writes while the store is switched offline.
var ErrOffline = errors.New("store is offline")

var (
	_ store.DocumentStore = (*Store)(nil)
	_ store.Refresher     = (*Store)(nil)
)

type Store struct {
	mu      sync.Mutex
	now     func() time.Time
	newID   func() string
	users   map[string]map[string]store.Document
	subs    map[string]map[int]*subscription
	nextSub int
	offline bool
}

func New() *Store {
	return &Store{
		now:   time.Now,
		newID: uuid.NewString,
		users: make(map[string]map[string]store.Document),
		subs:  make(map[string]map[int]*subscription),
	}
}

// WithClock replaces the clock used for server timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// SetOffline makes every following Add and Delete fail with ErrOffline.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// Seed inserts documents with fixed ids and notifies subscribers.
func (s *Store) Seed(userID string, docs ...store.Document) {
	s.mu.Lock()
	coll := s.collectionLocked(userID)
	for _, d := range docs {
		coll[d.ID] = store.Document{ID: d.ID, Fields: s.resolveFieldsLocked(d.Fields)}
	}
	s.mu.Unlock()
	s.broadcast(userID)
}

func (s *Store) Subscribe(ctx context.Context, userID string, onChange func([]store.Document), onError func(error)) (store.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, errors.New("subscribe: empty user id")
	}

	s.mu.Lock()
	s.nextSub++
	sub := newSubscription(s.nextSub, userID, onChange, onError)
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]*subscription)
	}
	s.subs[userID][sub.id] = sub
	sub.push(s.snapshotLocked(userID))
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subs[userID], sub.id)
		s.mu.Unlock()
		sub.stop()
	}
	go sub.run(ctx, unsubscribe)

	return unsubscribe, nil
}

func (s *Store) Add(ctx context.Context, userID string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	if s.offline {
		s.mu.Unlock()
		return "", ErrOffline
	}
	id := s.newID()
	s.collectionLocked(userID)[id] = store.Document{ID: id, Fields: s.resolveFieldsLocked(fields)}
	s.mu.Unlock()

	s.broadcast(userID)
	return id, nil
}

func (s *Store) Delete(ctx context.Context, userID string, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.offline {
		s.mu.Unlock()
		return ErrOffline
	}
	delete(s.collectionLocked(userID), id)
	s.mu.Unlock()

	s.broadcast(userID)
	return nil
}

// Refresh re-delivers the user's collection to every live subscription.
func (s *Store) Refresh(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.broadcast(userID)
	return nil
}

// FailStream terminates every subscription of the user with err.
func (s *Store) FailStream(userID string, err error) {
	s.mu.Lock()
	subs := s.subs[userID]
	delete(s.subs, userID)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

// Subscribers returns the number of live subscriptions of the user.
func (s *Store) Subscribers(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[userID])
}

// Len returns the number of stored documents of the user.
func (s *Store) Len(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users[userID])
}

func (s *Store) broadcast(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs[userID] {
		sub.push(s.snapshotLocked(userID))
	}
}

func (s *Store) collectionLocked(userID string) map[string]store.Document {
	coll, ok := s.users[userID]
	if !ok {
		coll = make(map[string]store.Document)
		s.users[userID] = coll
	}
	return coll
}

func (s *Store) resolveFieldsLocked(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if store.IsServerTimestamp(v) {
			v = store.TimestampOf(s.now())
		}
		out[k] = v
	}
	return out
}

// snapshotLocked returns copies of the user's documents ordered by date descending.
func (s *Store) snapshotLocked(userID string) []store.Document {
	coll := s.users[userID]
	out := make([]store.Document, 0, len(coll))
	for _, d := range coll {
		fields := make(map[string]any, len(d.Fields))
		for k, v := range d.Fields {
			fields[k] = v
		}
		out = append(out, store.Document{ID: d.ID, Fields: fields})
	}
	store.SortDocuments(out)
	return out
}
