package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"seara/internal/auth"
	"seara/internal/cache"
	"seara/internal/core"
	"seara/internal/export"
	applog "seara/internal/log"
	"seara/internal/store"
)

// SessionConfig holds configuration for a session
type SessionConfig struct {
	// Location is used to read dates and to render exports (default: UTC)
	Location *time.Location

	// SummaryCacheSize is the number of memoized summaries kept (default: 64)
	SummaryCacheSize int

	// SummaryCacheTTL bounds how long a memoized summary lives (default: 5m)
	SummaryCacheTTL time.Duration

	// CacheManager, when set, periodically evicts expired summaries
	CacheManager *cache.Manager

	// OnStreamError is called when the active subscription fails
	OnStreamError func(*StreamError)

	// OnSnapshot is called after every remote snapshot reaches the cache
	OnSnapshot func(cache.Snapshot)

	Mutations MutationCoordinatorConfig
	Logger    *applog.Logger
}

// DefaultSessionConfig returns sensible defaults
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Location:         time.UTC,
		SummaryCacheSize: 64,
		SummaryCacheTTL:  5 * time.Minute,
		Mutations:        DefaultMutationCoordinatorConfig(),
	}
}

// Session ties the sync engine to the signed-in identity. It opens a sync
// channel on sign-in, closes it on sign-out and swaps it when the identity
// changes. Views read immutable cache snapshots of the current user.
type Session struct {
	authn       auth.Authenticator
	store       store.DocumentStore
	cache       *cache.TransactionCache
	coordinator *MutationCoordinator
	summaries   *cache.LRUCache[core.Summary]
	config      SessionConfig
	logger      *applog.Logger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	userID    string
	channel   *SyncChannel
	streamErr *StreamError
	stopAuth  func()
	started   bool
	closed    bool
	changed   chan struct{}
}

func NewSession(authn auth.Authenticator, st store.DocumentStore, config SessionConfig) *Session {
	defaults := DefaultSessionConfig()
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if config.SummaryCacheSize <= 0 {
		config.SummaryCacheSize = defaults.SummaryCacheSize
	}
	if config.SummaryCacheTTL <= 0 {
		config.SummaryCacheTTL = defaults.SummaryCacheTTL
	}
	logger := config.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if config.Mutations.Logger == nil {
		config.Mutations.Logger = logger
	}

	c := cache.NewTransactionCache()
	s := &Session{
		authn:       authn,
		store:       st,
		cache:       c,
		coordinator: NewMutationCoordinator(st, c, authn, config.Mutations),
		summaries:   cache.NewLRUCache[core.Summary](config.SummaryCacheSize, config.SummaryCacheTTL),
		config:      config,
		logger:      logger.WithComponent(applog.ComponentSession),
		changed:     make(chan struct{}),
	}
	if config.CacheManager != nil {
		config.CacheManager.Register(s.summaries)
	}
	return s
}

// Start begins following the authenticator. The current identity, if any,
// gets its channel opened before Start returns.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session is closed")
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("session is already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	stop := s.authn.OnAuthChange(s.handleAuthChange)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stop()
		return nil
	}
	s.stopAuth = stop
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Session started", applog.FieldOperation, applog.OpStartup)
	return nil
}

func (s *Session) handleAuthChange(id *auth.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	newUser := ""
	if id != nil {
		newUser = id.ID
	}
	if newUser == s.userID && (s.channel != nil || newUser == "") {
		return
	}

	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}
	if s.userID != "" {
		s.cache.Drop(s.userID)
		s.summaries.Purge()
		s.logger.Info("Closed transactions channel",
			applog.FieldUserID, s.userID,
			applog.FieldOperation, applog.OpSignOut)
	}
	s.userID = newUser
	s.streamErr = nil
	s.notifyLocked()

	if newUser == "" {
		return
	}

	ch, err := OpenSyncChannel(s.ctx, s.store, s.cache, newUser, SyncChannelConfig{
		OnStreamError: s.handleStreamError,
		OnSnapshot:    s.handleSnapshot,
		Logger:        s.logger,
	})
	if err != nil {
		s.streamErr = &StreamError{UserID: newUser, Err: err}
		s.logger.LogError(s.ctx, "Failed to open transactions channel", err, applog.OpSubscribe,
			applog.NewFields().WithUser(newUser))
		return
	}
	s.channel = ch
	s.logger.Info("Opened transactions channel",
		applog.FieldUserID, newUser,
		applog.FieldOperation, applog.OpSignIn)
}

func (s *Session) handleStreamError(err *StreamError) {
	s.mu.Lock()
	if s.userID == err.UserID && !s.closed {
		s.streamErr = err
		s.notifyLocked()
	}
	s.mu.Unlock()

	if s.config.OnStreamError != nil {
		s.config.OnStreamError(err)
	}
}

func (s *Session) handleSnapshot(snap cache.Snapshot) {
	s.mu.Lock()
	if snap.UserID == s.userID {
		s.notifyLocked()
	}
	s.mu.Unlock()

	if s.config.OnSnapshot != nil {
		s.config.OnSnapshot(snap)
	}
}

// notifyLocked wakes everybody waiting in Changed.
func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Changed returns a channel closed at the next identity change, remote
// snapshot or stream failure.
func (s *Session) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// User returns the signed-in identity, or nil.
func (s *Session) User() *auth.Identity {
	return s.authn.CurrentUser()
}

// UserID returns the user whose channel is open, or "".
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Snapshot returns the cached state of the current user.
func (s *Session) Snapshot() cache.Snapshot {
	return s.cache.Snapshot(s.UserID())
}

// Transactions returns the current user's records relevant to rng, ordered
// as the store delivered them. A nil rng returns every record.
func (s *Session) Transactions(rng *core.DateRange) []core.Transaction {
	return core.Filter(s.Snapshot().Items, rng)
}

// Summary returns the totals of Transactions(rng). Results are memoized per
// cache version.
func (s *Session) Summary(rng *core.DateRange) core.Summary {
	snap := s.Snapshot()
	key := summaryKey(snap, rng)
	if sum, ok := s.summaries.Get(key); ok {
		return sum
	}
	sum := core.Aggregate(core.Filter(snap.Items, rng))
	s.summaries.Set(key, sum)
	return sum
}

// Categories returns the per-category totals of Transactions(rng).
func (s *Session) Categories(rng *core.DateRange) []core.CategoryAmount {
	return core.CategoryBreakdown(s.Transactions(rng))
}

// Monthly returns the month-by-month flow of Transactions(rng).
func (s *Session) Monthly(rng *core.DateRange) []core.MonthFlow {
	return core.MonthlyFlow(s.Transactions(rng), s.config.Location)
}

// ExportCSV writes the CSV export of Transactions(rng) to w.
func (s *Session) ExportCSV(w io.Writer, rng *core.DateRange) error {
	return export.WriteCSV(w, s.Transactions(rng), s.config.Location)
}

// Location returns the zone dates are read and rendered in.
func (s *Session) Location() *time.Location {
	return s.config.Location
}

func (s *Session) Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	return s.coordinator.Create(ctx, in)
}

func (s *Session) Delete(ctx context.Context, id string) error {
	return s.coordinator.Delete(ctx, id)
}

// Pending reports whether a write is waiting for the store.
func (s *Session) Pending() bool {
	return s.coordinator.Pending()
}

// StreamErr returns the failure of the current user's subscription, if any.
// The cache keeps the last snapshot received before the failure.
func (s *Session) StreamErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamErr == nil {
		return nil
	}
	return s.streamErr
}

// WaitReady blocks until the current user's first snapshot reached the cache.
func (s *Session) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	ch, streamErr := s.channel, s.streamErr
	s.mu.Unlock()

	if streamErr != nil {
		return streamErr
	}
	if ch == nil {
		return ErrUnauthenticated
	}
	return ch.WaitReady(ctx)
}

// Close stops following the authenticator and closes the open channel.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	stop, ch := s.stopAuth, s.channel
	s.stopAuth, s.channel = nil, nil
	cancel := s.cancel
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if ch != nil {
		ch.Close()
	}
	if cancel != nil {
		cancel()
	}
	s.logger.Info("Session closed", applog.FieldOperation, applog.OpShutdown)
}

func summaryKey(snap cache.Snapshot, rng *core.DateRange) string {
	if rng == nil {
		return fmt.Sprintf("%s|%d|all", snap.UserID, snap.Version)
	}
	from, to := rng.Bounds()
	return fmt.Sprintf("%s|%d|%d|%d", snap.UserID, snap.Version, from.UnixNano(), to.UnixNano())
}
