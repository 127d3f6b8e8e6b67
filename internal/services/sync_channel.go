package services

import (
	"context"
	"fmt"
	"sync"

	"seara/internal/cache"
	"seara/internal/core"
	applog "seara/internal/log"
	"seara/internal/store"
)

// SyncChannelConfig holds the optional hooks of a sync channel
type SyncChannelConfig struct {
	// OnStreamError is called once when the subscription fails
	OnStreamError func(*StreamError)

	// OnSnapshot is called after every snapshot written to the cache
	OnSnapshot func(cache.Snapshot)

	Logger *applog.Logger
}

// SyncChannel keeps one user's cache entry equal to the latest snapshot the
// store delivered. Once closed it never writes to the cache again.
type SyncChannel struct {
	userID        string
	cache         *cache.TransactionCache
	logger        *applog.Logger
	onStreamError func(*StreamError)
	onSnapshot    func(cache.Snapshot)
	cancel        context.CancelFunc

	mu          sync.Mutex
	closed      bool
	unsubscribe store.Unsubscribe
	err         *StreamError
	snapshots   int

	ready     chan struct{}
	readyOnce sync.Once
}

// OpenSyncChannel subscribes to the user's collection. The subscription lives
// until Close, independently of ctx cancellation after OpenSyncChannel returns.
func OpenSyncChannel(ctx context.Context, st store.DocumentStore, c *cache.TransactionCache, userID string, cfg SyncChannelConfig) (*SyncChannel, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	logger := cfg.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch := &SyncChannel{
		userID:        userID,
		cache:         c,
		logger:        logger.WithComponent(applog.ComponentSync),
		onStreamError: cfg.OnStreamError,
		onSnapshot:    cfg.OnSnapshot,
		cancel:        cancel,
		ready:         make(chan struct{}),
	}

	unsub, err := st.Subscribe(subCtx, userID, ch.apply, ch.fail)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to transactions of %s: %w", userID, err)
	}

	ch.mu.Lock()
	if ch.closed || ch.err != nil {
		// the stream already ended while Subscribe was returning
		ch.mu.Unlock()
		unsub()
	} else {
		ch.unsubscribe = unsub
		ch.mu.Unlock()
	}

	ch.logger.DebugContext(ctx, "Subscribed to transactions",
		applog.FieldUserID, userID,
		applog.FieldOperation, applog.OpSubscribe)
	return ch, nil
}

// UserID returns the user whose collection the channel mirrors.
func (ch *SyncChannel) UserID() string {
	return ch.userID
}

func (ch *SyncChannel) apply(docs []store.Document) {
	items := make([]core.Transaction, 0, len(docs))
	for _, d := range docs {
		tx, err := store.DecodeTransaction(d)
		if err != nil {
			ch.logger.Warn("Skipping malformed transaction document",
				applog.FieldUserID, ch.userID,
				applog.FieldTxID, d.ID,
				applog.FieldError, err)
			continue
		}
		items = append(items, tx)
	}

	ch.mu.Lock()
	if ch.closed || ch.err != nil {
		ch.mu.Unlock()
		return
	}
	snap := ch.cache.Replace(ch.userID, items)
	ch.snapshots++
	ch.mu.Unlock()

	ch.readyOnce.Do(func() { close(ch.ready) })
	ch.logger.Debug("Applied remote snapshot",
		applog.FieldUserID, ch.userID,
		applog.FieldCount, len(items),
		applog.FieldVersion, snap.Version)

	if ch.onSnapshot != nil {
		ch.onSnapshot(snap)
	}
}

func (ch *SyncChannel) fail(err error) {
	ch.mu.Lock()
	if ch.closed || ch.err != nil {
		ch.mu.Unlock()
		return
	}
	streamErr := &StreamError{UserID: ch.userID, Err: err}
	ch.err = streamErr
	unsub := ch.unsubscribe
	ch.unsubscribe = nil
	ch.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	ch.readyOnce.Do(func() { close(ch.ready) })

	ch.logger.LogError(context.Background(), "Transactions stream failed", err, applog.OpSubscribe,
		applog.NewFields().WithUser(ch.userID))

	if ch.onStreamError != nil {
		ch.onStreamError(streamErr)
	}
}

// Err returns the stream failure, or nil while the stream is healthy.
func (ch *SyncChannel) Err() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.err == nil {
		return nil
	}
	return ch.err
}

// Snapshots returns how many remote snapshots were applied.
func (ch *SyncChannel) Snapshots() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.snapshots
}

// WaitReady blocks until the first snapshot arrived or the stream failed.
func (ch *SyncChannel) WaitReady(ctx context.Context) error {
	select {
	case <-ch.ready:
		return ch.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the subscription. Snapshots arriving afterwards are ignored.
func (ch *SyncChannel) Close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	unsub := ch.unsubscribe
	ch.unsubscribe = nil
	ch.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	ch.cancel()
}
