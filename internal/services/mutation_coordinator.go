package services

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"seara/internal/auth"
	"seara/internal/cache"
	"seara/internal/core"
	applog "seara/internal/log"
	"seara/internal/store"
)

// MutationCoordinatorConfig holds configuration for the mutation coordinator
type MutationCoordinatorConfig struct {
	// RefreshTimeout bounds the refresh requested after every settled write (default: 5s)
	RefreshTimeout time.Duration

	Logger *applog.Logger
}

// DefaultMutationCoordinatorConfig returns sensible defaults
func DefaultMutationCoordinatorConfig() MutationCoordinatorConfig {
	return MutationCoordinatorConfig{
		RefreshTimeout: 5 * time.Second,
	}
}

// MutationCoordinator applies creates and deletes to the cache before the
// store confirms them and reverts the cache when the store rejects the write.
type MutationCoordinator struct {
	store  store.DocumentStore
	cache  *cache.TransactionCache
	authn  auth.Authenticator
	config MutationCoordinatorConfig
	logger *applog.Logger

	now            func() time.Time
	newPlaceholder func() string

	inflight atomic.Int64
}

func NewMutationCoordinator(st store.DocumentStore, c *cache.TransactionCache, authn auth.Authenticator, config MutationCoordinatorConfig) *MutationCoordinator {
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = DefaultMutationCoordinatorConfig().RefreshTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &MutationCoordinator{
		store:  st,
		cache:  c,
		authn:  authn,
		config: config,
		logger: logger.WithComponent(applog.ComponentMutation),
		now:    time.Now,
		newPlaceholder: func() string {
			return core.PlaceholderPrefix + uuid.NewString()
		},
	}
}

// Create validates in, shows a provisional record at the head of the user's
// list and writes the document. The returned record carries the store id.
// createdAt is requested from the store clock; the returned value is the
// local time used for the provisional record.
func (m *MutationCoordinator) Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	user := m.authn.CurrentUser()
	if user == nil {
		return core.Transaction{}, ErrUnauthenticated
	}
	if err := in.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	in = in.Normalize()

	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	createdAt := core.FormatISO(m.now())
	placeholder := in.Record(m.newPlaceholder(), createdAt)

	prior, applied := m.cache.Patch(user.ID, func(items []core.Transaction) []core.Transaction {
		return append([]core.Transaction{placeholder}, items...)
	})

	id, err := m.store.Add(ctx, user.ID, store.EncodeInput(in, store.ServerTimestamp))
	if err != nil {
		outcome := m.cache.Rollback(user.ID, applied, prior, removeID(placeholder.ID))
		m.logger.LogError(ctx, "Failed to create transaction", err, applog.OpCreate,
			applog.NewFields().
				WithUser(user.ID).
				WithTransaction(placeholder.ID, in.Description, in.Amount.Cents, in.Category, string(in.Type), string(in.Status)))
		m.logger.InfoContext(ctx, "Rolled back optimistic create",
			applog.FieldUserID, user.ID,
			applog.FieldOutcome, outcome.String())
		m.settle(ctx, user.ID)
		return core.Transaction{}, &WriteError{Op: applog.OpCreate, Err: err}
	}

	m.logger.InfoContext(ctx, "Transaction created",
		applog.NewFields().
			WithUser(user.ID).
			WithTransaction(id, in.Description, in.Amount.Cents, in.Category, string(in.Type), string(in.Status)).
			ToSlice()...)
	m.settle(ctx, user.ID)
	return in.Record(id, createdAt), nil
}

// Delete hides the record from the user's list and deletes the document.
// On failure the record reappears at its former position.
func (m *MutationCoordinator) Delete(ctx context.Context, id string) error {
	user := m.authn.CurrentUser()
	if user == nil {
		return ErrUnauthenticated
	}
	if id == "" {
		return fmt.Errorf("delete transaction: empty id")
	}

	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	var (
		removed core.Transaction
		after   string
	)
	prior, applied := m.cache.Patch(user.ID, func(items []core.Transaction) []core.Transaction {
		for i, tx := range items {
			if tx.ID == id {
				removed = tx
				if i > 0 {
					after = items[i-1].ID
				}
				return append(items[:i], items[i+1:]...)
			}
		}
		return items
	})

	if err := m.store.Delete(ctx, user.ID, id); err != nil {
		outcome := m.cache.Rollback(user.ID, applied, prior, reinsert(removed, after))
		m.logger.LogError(ctx, "Failed to delete transaction", err, applog.OpDelete,
			applog.NewFields().WithUser(user.ID))
		m.logger.InfoContext(ctx, "Rolled back optimistic delete",
			applog.FieldUserID, user.ID,
			applog.FieldTxID, id,
			applog.FieldOutcome, outcome.String())
		m.settle(ctx, user.ID)
		return &WriteError{Op: applog.OpDelete, ID: id, Err: err}
	}

	m.logger.InfoContext(ctx, "Transaction deleted",
		applog.FieldUserID, user.ID,
		applog.FieldTxID, id)
	m.settle(ctx, user.ID)
	return nil
}

// Pending reports whether a create or delete is waiting for the store.
func (m *MutationCoordinator) Pending() bool {
	return m.inflight.Load() > 0
}

// settle asks the store to re-deliver the collection so the cache converges
// on the authoritative state after a write.
func (m *MutationCoordinator) settle(ctx context.Context, userID string) {
	r, ok := m.store.(store.Refresher)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.RefreshTimeout)
	defer cancel()
	if err := r.Refresh(ctx, userID); err != nil {
		m.logger.WarnContext(ctx, "Failed to refresh transactions",
			applog.FieldUserID, userID,
			applog.FieldOperation, applog.OpRefresh,
			applog.FieldError, err)
	}
}

func removeID(id string) func([]core.Transaction) []core.Transaction {
	return func(items []core.Transaction) []core.Transaction {
		out := items[:0]
		for _, tx := range items {
			if tx.ID != id {
				out = append(out, tx)
			}
		}
		return out
	}
}

// reinsert puts tx back right after the record with id after, or at the head
// behind provisional records when after is empty. If that neighbour is gone,
// tx goes to its date-descending position. A zero tx leaves items unchanged.
func reinsert(tx core.Transaction, after string) func([]core.Transaction) []core.Transaction {
	return func(items []core.Transaction) []core.Transaction {
		if tx.ID == "" {
			return items
		}
		at := -1
		for i, it := range items {
			if it.ID == tx.ID {
				return items
			}
			if after != "" && it.ID == after {
				at = i + 1
			}
		}
		switch {
		case after == "":
			at = 0
			for at < len(items) && items[at].IsPlaceholder() {
				at++
			}
		case at < 0:
			at = datePosition(items, tx)
		}
		return slices.Insert(items, at, tx)
	}
}

// datePosition returns the index that keeps items ordered by date descending
// once tx is inserted there. Records with unparseable dates go last.
func datePosition(items []core.Transaction, tx core.Transaction) int {
	t, err := core.ParseDate(tx.Date)
	if err != nil {
		return len(items)
	}
	for i, it := range items {
		if it.IsPlaceholder() {
			continue
		}
		if d, err := core.ParseDate(it.Date); err == nil && d.Before(t) {
			return i
		}
	}
	return len(items)
}
