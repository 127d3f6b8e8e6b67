// Package storage is a SQLite-backed document store. Subscribers poll a
// per-user revision counter and receive the full collection when it moves.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"seara/internal/core"
	applog "seara/internal/log"
	"seara/internal/store"

	_ "modernc.org/sqlite"
)

var ErrClosed = errors.New("store is closed")

const loadTimeout = 10 * time.Second

var (
	_ store.DocumentStore = (*SQLiteStore)(nil)
	_ store.Refresher     = (*SQLiteStore)(nil)
)

// Options configures a SQLiteStore
type Options struct {
	// PollInterval is how often subscribers check for changes (default: 2s)
	PollInterval time.Duration

	Logger *applog.Logger
}

type SQLiteStore struct {
	db           *sql.DB
	queries      *Queries
	pollInterval time.Duration
	logger       *applog.Logger
	now          func() time.Time
	newID        func() string
	loads        singleflight.Group

	mu      sync.Mutex
	subs    map[string]map[int]*poller
	nextSub int
	closed  bool
	wg      sync.WaitGroup
}

func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// one connection serializes writers and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	s := &SQLiteStore{
		db:           db,
		queries:      New(db),
		pollInterval: opts.PollInterval,
		logger:       logger.WithComponent(applog.ComponentStore),
		now:          time.Now,
		newID:        uuid.NewString,
		subs:         make(map[string]map[int]*poller),
	}
	s.logger.Info("SQLite store ready", "path", dbPath, "schema_version", version)
	return s, nil
}

// Close stops every subscription and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var all []*poller
	for _, subs := range s.subs {
		for _, p := range subs {
			all = append(all, p)
		}
	}
	s.subs = make(map[string]map[int]*poller)
	s.mu.Unlock()

	for _, p := range all {
		p.stop()
	}
	s.wg.Wait()
	return s.db.Close()
}

func (s *SQLiteStore) Subscribe(ctx context.Context, userID string, onChange func([]store.Document), onError func(error)) (store.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, errors.New("subscribe: empty user id")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextSub++
	p := newPoller(s.nextSub, userID, onChange, onError)
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]*poller)
	}
	s.subs[userID][p.id] = p
	s.wg.Add(1)
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subs[userID], p.id)
		s.mu.Unlock()
		p.stop()
	}
	go func() {
		defer s.wg.Done()
		p.run(ctx, s, unsubscribe)
	}()

	return unsubscribe, nil
}

func (s *SQLiteStore) Add(ctx context.Context, userID string, fields map[string]any) (string, error) {
	if userID == "" {
		return "", errors.New("add: empty user id")
	}
	id := s.newID()
	resolved := make(map[string]any, len(fields))
	for k, v := range fields {
		if store.IsServerTimestamp(v) {
			v = store.TimestampOf(s.now())
		}
		resolved[k] = v
	}
	tx, err := store.DecodeTransaction(store.Document{ID: id, Fields: resolved})
	if err != nil {
		return "", fmt.Errorf("add transaction: %w", err)
	}

	row := TransactionRow{
		ID:          id,
		UserID:      userID,
		Description: tx.Description,
		AmountCents: tx.Amount.Cents,
		Category:    tx.Category,
		Type:        string(tx.Type),
		Status:      string(tx.Status),
		Date:        tx.Date,
		CreatedAt:   tx.CreatedAt,
	}
	err = s.inTx(ctx, func(q *Queries) error {
		if err := q.InsertTransaction(ctx, row); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return q.BumpRevision(ctx, userID)
	})
	if err != nil {
		return "", err
	}

	s.logger.DebugContext(ctx, "Transaction stored",
		applog.FieldUserID, userID,
		applog.FieldTxID, id,
		applog.FieldAmountCents, row.AmountCents)
	s.kick(userID)
	return id, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID string, id string) error {
	var deleted int64
	err := s.inTx(ctx, func(q *Queries) error {
		n, err := q.DeleteTransaction(ctx, userID, id)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		deleted = n
		if n == 0 {
			return nil
		}
		return q.BumpRevision(ctx, userID)
	})
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.kick(userID)
	}
	return nil
}

// Refresh makes every subscription of the user reload immediately.
func (s *SQLiteStore) Refresh(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	s.kick(userID)
	return nil
}

// Count returns the number of stored transactions of the user.
func (s *SQLiteStore) Count(ctx context.Context, userID string) (int64, error) {
	n, err := s.queries.CountTransactions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) kick(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.subs[userID] {
		p.kick()
	}
}

// load reads the user's collection at revision rev. Concurrent loads of the
// same revision share one query, which is not bound to any caller's context.
func (s *SQLiteStore) load(userID string, rev int64) ([]store.Document, error) {
	v, err, _ := s.loads.Do(fmt.Sprintf("%s@%d", userID, rev), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		rows, err := s.queries.ListTransactions(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		docs := make([]store.Document, len(rows))
		for i, r := range rows {
			docs[i] = rowDocument(r)
		}
		store.SortDocuments(docs)
		return docs, nil
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]store.Document)
	out := make([]store.Document, len(shared))
	for i, d := range shared {
		fields := make(map[string]any, len(d.Fields))
		for k, f := range d.Fields {
			fields[k] = f
		}
		out[i] = store.Document{ID: d.ID, Fields: fields}
	}
	return out, nil
}

func (s *SQLiteStore) revision(ctx context.Context, userID string) (int64, error) {
	rev, err := s.queries.GetRevision(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return rev, nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(s.queries.WithTx(tx)); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func rowDocument(r TransactionRow) store.Document {
	return store.Document{ID: r.ID, Fields: map[string]any{
		store.FieldDescription: r.Description,
		store.FieldAmount:      json.Number(core.Money{Cents: r.AmountCents}.String()),
		store.FieldCategory:    r.Category,
		store.FieldType:        r.Type,
		store.FieldStatus:      r.Status,
		store.FieldDate:        r.Date,
		store.FieldCreatedAt:   r.CreatedAt,
	}}
}
