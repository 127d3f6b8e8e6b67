package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seara/internal/auth"
	"seara/internal/cache"
	"seara/internal/core"
	applog "seara/internal/log"
	"seara/internal/store"
	"seara/internal/store/memory"
)

const waitFor = time.Second

func testConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Logger = applog.Discard()
	return cfg
}

func doc(id string, cents int64, typ core.TransactionType, status core.Status, date string) store.Document {
	return store.Document{ID: id, Fields: map[string]any{
		store.FieldDescription: "tx " + id,
		store.FieldAmount:      float64(cents) / 100,
		store.FieldCategory:    "Outros",
		store.FieldType:        string(typ),
		store.FieldStatus:      string(status),
		store.FieldDate:        date,
		store.FieldCreatedAt:   date + "T09:00:00.000Z",
	}}
}

func input(desc string, cents int64) core.TransactionInput {
	return core.TransactionInput{
		Description: desc,
		Amount:      core.Money{Cents: cents},
		Category:    "Alimentação",
		Type:        core.Expense,
		Status:      core.StatusPaid,
		Date:        "2026-02-10",
	}
}

func ids(items []core.Transaction) []string {
	out := make([]string, len(items))
	for i, tx := range items {
		out[i] = tx.ID
	}
	return out
}

// startSession signs userID in and waits until its seeded records are cached.
func startSession(t *testing.T, st *memory.Store, userID string, want int) (*Session, *auth.Local) {
	t.Helper()
	authn := auth.NewLocal()
	s := NewSession(authn, st, testConfig())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)

	require.NoError(t, authn.SignIn(context.Background(), auth.Identity{ID: userID}))
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.WaitReady(ctx))
	require.Eventually(t, func() bool { return len(s.Snapshot().Items) == want }, waitFor, 5*time.Millisecond)
	return s, authn
}

func seeded() *memory.Store {
	st := memory.New()
	st.Seed("u1",
		doc("1", 150000, core.Expense, core.StatusPaid, "2026-02-01"),
		doc("2", 500000, core.Income, core.StatusReceived, "2026-02-05"),
	)
	return st
}

func TestSessionMirrorsStore(t *testing.T) {
	s, _ := startSession(t, seeded(), "u1", 2)

	assert.Equal(t, "u1", s.UserID())
	assert.Equal(t, []string{"2", "1"}, ids(s.Transactions(nil)))
	assert.Equal(t, core.Summary{
		Income:  core.Money{Cents: 500000},
		Expense: core.Money{Cents: 150000},
		Balance: core.Money{Cents: 350000},
	}, s.Summary(nil))
}

func TestCreateOfflineRevertsCache(t *testing.T) {
	st := seeded()
	s, _ := startSession(t, st, "u1", 2)
	before := s.Snapshot().Items

	st.SetOffline(true)
	_, err := s.Create(context.Background(), input("Mercado", 15050))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailed))
	assert.True(t, errors.Is(err, memory.ErrOffline))

	var werr *WriteError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, applog.OpCreate, werr.Op)

	assert.Equal(t, before, s.Snapshot().Items)
	assert.False(t, s.Pending())
	assert.Equal(t, 2, st.Len("u1"))
}

func TestDeleteOfflineRestoresRecordAtItsPosition(t *testing.T) {
	st := seeded()
	st.Seed("u1", doc("3", 1000, core.Expense, core.StatusPaid, "2026-02-03"))
	s, _ := startSession(t, st, "u1", 3)
	before := s.Snapshot().Items
	require.Equal(t, []string{"2", "3", "1"}, ids(before))

	st.SetOffline(true)
	err := s.Delete(context.Background(), "3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWriteFailed))

	var werr *WriteError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "3", werr.ID)
	assert.Equal(t, before, s.Snapshot().Items)
}

func TestCreateConfirmsWithStoreID(t *testing.T) {
	st := seeded()
	s, _ := startSession(t, st, "u1", 2)

	tx, err := s.Create(context.Background(), input("  Mercado ", 15050))
	require.NoError(t, err)
	assert.False(t, tx.IsPlaceholder())
	assert.Equal(t, "Mercado", tx.Description)
	assert.NotEmpty(t, tx.CreatedAt)

	require.Eventually(t, func() bool {
		items := s.Snapshot().Items
		if len(items) != 3 {
			return false
		}
		for _, it := range items {
			if it.IsPlaceholder() {
				return false
			}
		}
		return true
	}, waitFor, 5*time.Millisecond)

	var found core.Transaction
	for _, it := range s.Snapshot().Items {
		if it.ID == tx.ID {
			found = it
		}
	}
	require.Equal(t, tx.ID, found.ID)
	assert.Equal(t, core.Money{Cents: 15050}, found.Amount)
	_, err = core.ParseDate(found.CreatedAt)
	assert.NoError(t, err, "server timestamp should decode to an ISO string")
}

func TestDeleteRemovesRecord(t *testing.T) {
	st := seeded()
	s, _ := startSession(t, st, "u1", 2)

	require.NoError(t, s.Delete(context.Background(), "1"))
	assert.Equal(t, []string{"2"}, ids(s.Snapshot().Items))
	assert.Equal(t, 1, st.Len("u1"))
}

func TestMutationsRequireSignedInUser(t *testing.T) {
	st := memory.New()
	authn := auth.NewLocal()
	s := NewSession(authn, st, testConfig())
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	_, err := s.Create(context.Background(), input("Mercado", 100))
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, s.Delete(context.Background(), "1"), ErrUnauthenticated)
	assert.ErrorIs(t, s.WaitReady(context.Background()), ErrUnauthenticated)
	assert.Equal(t, 0, st.Len(""))
	assert.Empty(t, s.Transactions(nil))
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	st := seeded()
	s, _ := startSession(t, st, "u1", 2)
	before := s.Snapshot()

	_, err := s.Create(context.Background(), input("Mercado", 0))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	_, err = s.Create(context.Background(), input("   ", 10))
	assert.ErrorIs(t, err, core.ErrEmptyDescription)

	assert.Equal(t, before.Version, s.Snapshot().Version)
	assert.Equal(t, 2, st.Len("u1"))
}

func TestUsersNeverShareCacheEntries(t *testing.T) {
	st := memory.New()
	s1, _ := startSession(t, st, "u1", 0)
	s2, _ := startSession(t, st, "u2", 0)

	_, err := s1.Create(context.Background(), input("only u1", 100))
	require.NoError(t, err)
	_, err = s2.Create(context.Background(), input("only u2", 200))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(s1.Snapshot().Items) == 1 && len(s2.Snapshot().Items) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, "only u1", s1.Snapshot().Items[0].Description)
	assert.Equal(t, "only u2", s2.Snapshot().Items[0].Description)
}

func TestChannelsOnSharedCacheStayIsolated(t *testing.T) {
	st := memory.New()
	c := cache.NewTransactionCache()
	cfg := SyncChannelConfig{Logger: applog.Discard()}

	ch1, err := OpenSyncChannel(context.Background(), st, c, "u1", cfg)
	require.NoError(t, err)
	defer ch1.Close()
	ch2, err := OpenSyncChannel(context.Background(), st, c, "u2", cfg)
	require.NoError(t, err)
	defer ch2.Close()

	st.Seed("u1", doc("a", 100, core.Expense, core.StatusPaid, "2026-02-01"))
	st.Seed("u2", doc("b", 200, core.Income, core.StatusReceived, "2026-02-02"))

	require.Eventually(t, func() bool {
		return len(c.Snapshot("u1").Items) == 1 && len(c.Snapshot("u2").Items) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"a"}, ids(c.Snapshot("u1").Items))
	assert.Equal(t, []string{"b"}, ids(c.Snapshot("u2").Items))
}

func TestStreamErrorFreezesCache(t *testing.T) {
	st := seeded()
	var reported *StreamError
	authn := auth.NewLocal()
	cfg := testConfig()
	errs := make(chan *StreamError, 1)
	cfg.OnStreamError = func(e *StreamError) { errs <- e }
	s := NewSession(authn, st, cfg)
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()
	require.NoError(t, authn.SignIn(context.Background(), auth.Identity{ID: "u1"}))
	require.Eventually(t, func() bool { return len(s.Snapshot().Items) == 2 }, waitFor, 5*time.Millisecond)

	st.FailStream("u1", errors.New("permission denied"))
	select {
	case reported = <-errs:
	case <-time.After(waitFor):
		t.Fatal("stream error not reported")
	}
	assert.Equal(t, "u1", reported.UserID)
	assert.ErrorIs(t, s.StreamErr(), ErrStreamFailed)

	st.Seed("u1", doc("3", 100, core.Expense, core.StatusPaid, "2026-02-03"))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, s.Snapshot().Items, 2)
}

func TestSignOutClosesChannelAndDropsCache(t *testing.T) {
	st := seeded()
	s, authn := startSession(t, st, "u1", 2)
	require.Equal(t, 1, st.Subscribers("u1"))

	require.NoError(t, authn.SignOut(context.Background()))
	assert.Equal(t, "", s.UserID())
	assert.Empty(t, s.Transactions(nil))
	require.Eventually(t, func() bool { return st.Subscribers("u1") == 0 }, waitFor, 5*time.Millisecond)
}

func TestIdentitySwitchReplacesChannel(t *testing.T) {
	st := seeded()
	st.Seed("u2", doc("x", 100, core.Income, core.StatusReceived, "2026-02-01"))
	s, authn := startSession(t, st, "u1", 2)

	require.NoError(t, authn.SignIn(context.Background(), auth.Identity{ID: "u2"}))
	require.Eventually(t, func() bool { return len(s.Snapshot().Items) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "u2", s.UserID())
	assert.Equal(t, []string{"x"}, ids(s.Transactions(nil)))
	require.Eventually(t, func() bool { return st.Subscribers("u1") == 0 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, st.Subscribers("u2"))
}

func TestSummaryFollowsNewSnapshots(t *testing.T) {
	st := seeded()
	s, _ := startSession(t, st, "u1", 2)
	assert.Equal(t, int64(350000), s.Summary(nil).Balance.Cents)

	st.Seed("u1", doc("3", 50000, core.Expense, core.StatusPaid, "2026-02-07"))
	require.Eventually(t, func() bool { return s.Summary(nil).Balance.Cents == 300000 }, waitFor, 5*time.Millisecond)
}

func TestRangeViewsKeepPendingRecords(t *testing.T) {
	st := memory.New()
	receivable := doc("r", 1000, core.Income, core.StatusReceivable, "2026-05-01")
	receivable.Fields[store.FieldCreatedAt] = "2026-02-03T12:00:00.000Z"
	st.Seed("u1",
		receivable,
		doc("p", 2000, core.Expense, core.StatusPaid, "2026-03-01"),
		doc("in", 3000, core.Expense, core.StatusPaid, "2026-02-04"),
	)
	s, _ := startSession(t, st, "u1", 3)

	rng := &core.DateRange{
		From: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
	}
	assert.ElementsMatch(t, []string{"r", "in"}, ids(s.Transactions(rng)))
	assert.Equal(t, core.Summary{
		Income:  core.Money{Cents: 1000},
		Expense: core.Money{Cents: 3000},
		Balance: core.Money{Cents: -2000},
	}, s.Summary(rng))
	assert.Len(t, s.Transactions(nil), 3)
}

func TestExportCSVUsesFilteredSet(t *testing.T) {
	st := seeded()
	s, _ := startSession(t, st, "u1", 2)

	rng := &core.DateRange{
		From: time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
	}
	var buf bytes.Buffer
	require.NoError(t, s.ExportCSV(&buf, rng))

	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "tx 2,5000.00,Outros,Entrada,Recebido,05/02/2026,05/02/2026 09:00", lines[1])
}

func TestCloseIsIdempotent(t *testing.T) {
	st := seeded()
	s, _ := startSession(t, st, "u1", 2)
	s.Close()
	s.Close()
	require.Eventually(t, func() bool { return st.Subscribers("u1") == 0 }, waitFor, 5*time.Millisecond)
	assert.Error(t, s.Start(context.Background()))
}
