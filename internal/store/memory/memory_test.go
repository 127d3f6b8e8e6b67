package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seara/internal/store"
)

type recorder struct {
	mu        sync.Mutex
	snapshots [][]store.Document
	errs      []error
}

func (r *recorder) onChange(docs []store.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, docs)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) last() []store.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *recorder) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func docIDs(docs []store.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func fields(date string) map[string]any {
	return map[string]any{
		store.FieldDescription: "t",
		store.FieldAmount:      10.0,
		store.FieldDate:        date,
	}
}

func TestSubscribeDeliversInitialSnapshotOrderedByDateDesc(t *testing.T) {
	s := New()
	s.Seed("u1",
		store.Document{ID: "old", Fields: fields("2026-01-01")},
		store.Document{ID: "new", Fields: fields("2026-02-05")},
		store.Document{ID: "mid", Fields: fields("2026-02-01T12:00:00Z")},
	)

	rec := &recorder{}
	unsub, err := s.Subscribe(context.Background(), "u1", rec.onChange, rec.onError)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool { return rec.count() > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"new", "mid", "old"}, docIDs(rec.last()))
}

func TestAddAndDeleteNotifySubscribers(t *testing.T) {
	s := New()
	rec := &recorder{}
	unsub, err := s.Subscribe(context.Background(), "u1", rec.onChange, rec.onError)
	require.NoError(t, err)
	defer unsub()

	id, err := s.Add(context.Background(), "u1", fields("2026-02-10"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, id, rec.last()[0].ID)

	require.NoError(t, s.Delete(context.Background(), "u1", id))
	require.Eventually(t, func() bool { return rec.count() >= 2 && len(rec.last()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestServerTimestampIsResolved(t *testing.T) {
	at := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return at })

	f := fields("2026-02-10")
	f[store.FieldCreatedAt] = store.ServerTimestamp
	_, err := s.Add(context.Background(), "u1", f)
	require.NoError(t, err)

	rec := &recorder{}
	unsub, err := s.Subscribe(context.Background(), "u1", rec.onChange, rec.onError)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool { return len(rec.last()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, store.TimestampOf(at), rec.last()[0].Fields[store.FieldCreatedAt])
}

func TestUsersDoNotSeeEachOther(t *testing.T) {
	s := New()
	r1, r2 := &recorder{}, &recorder{}
	u1, err := s.Subscribe(context.Background(), "u1", r1.onChange, r1.onError)
	require.NoError(t, err)
	defer u1()
	u2, err := s.Subscribe(context.Background(), "u2", r2.onChange, r2.onError)
	require.NoError(t, err)
	defer u2()

	_, err = s.Add(context.Background(), "u1", fields("2026-02-10"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(r1.last()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, r2.last(), 0)
	assert.Equal(t, 0, s.Len("u2"))
}

func TestOfflineRejectsWrites(t *testing.T) {
	s := New()
	s.SetOffline(true)

	_, err := s.Add(context.Background(), "u1", fields("2026-02-10"))
	assert.True(t, errors.Is(err, ErrOffline))
	assert.True(t, errors.Is(s.Delete(context.Background(), "u1", "x"), ErrOffline))

	s.SetOffline(false)
	_, err = s.Add(context.Background(), "u1", fields("2026-02-10"))
	assert.NoError(t, err)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New()
	rec := &recorder{}
	unsub, err := s.Subscribe(context.Background(), "u1", rec.onChange, rec.onError)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	unsub()
	unsub()
	assert.Equal(t, 0, s.Subscribers("u1"))

	_, err = s.Add(context.Background(), "u1", fields("2026-02-10"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestContextCancellationUnsubscribes(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	_, err := s.Subscribe(ctx, "u1", rec.onChange, rec.onError)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool { return s.Subscribers("u1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestFailStreamEndsSubscription(t *testing.T) {
	s := New()
	rec := &recorder{}
	_, err := s.Subscribe(context.Background(), "u1", rec.onChange, rec.onError)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	s.FailStream("u1", errors.New("permission denied"))
	require.Eventually(t, func() bool { return rec.errCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err = s.Add(context.Background(), "u1", fields("2026-02-10"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 0, s.Subscribers("u1"))
}

func TestRefreshRedelivers(t *testing.T) {
	s := New()
	rec := &recorder{}
	unsub, err := s.Subscribe(context.Background(), "u1", rec.onChange, rec.onError)
	require.NoError(t, err)
	defer unsub()
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Refresh(context.Background(), "u1"))
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
}
