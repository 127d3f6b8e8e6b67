// Package worker runs background jobs that follow a session.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"seara/internal/cache"
	"seara/internal/core"
	"seara/internal/export"
	applog "seara/internal/log"
	"seara/internal/sheets"
)

// Source is the session state a mirror follows.
type Source interface {
	Snapshot() cache.Snapshot
	Location() *time.Location
	Changed() <-chan struct{}
}

// SheetMirrorConfig holds configuration for the sheet mirror
type SheetMirrorConfig struct {
	// Range limits the mirrored records; nil mirrors all of them
	Range *core.DateRange

	// MinInterval is the quiet period after a change before writing (default: 2s)
	MinInterval time.Duration

	// RetryInterval is how long to wait before retrying a failed write (default: 30s)
	RetryInterval time.Duration

	Logger *applog.Logger
}

// DefaultSheetMirrorConfig returns sensible defaults
func DefaultSheetMirrorConfig() SheetMirrorConfig {
	return SheetMirrorConfig{
		MinInterval:   2 * time.Second,
		RetryInterval: 30 * time.Second,
	}
}

// SheetMirror keeps a spreadsheet tab equal to the export of the source's
// confirmed records. Provisional records are never written.
type SheetMirror struct {
	source Source
	writer sheets.RowWriter
	config SheetMirrorConfig
	logger *applog.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	syncMu  sync.Mutex
	lastKey string
	writes  int
}

func NewSheetMirror(source Source, writer sheets.RowWriter, config SheetMirrorConfig) *SheetMirror {
	defaults := DefaultSheetMirrorConfig()
	if config.MinInterval <= 0 {
		config.MinInterval = defaults.MinInterval
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &SheetMirror{
		source: source,
		writer: writer,
		config: config,
		logger: logger.WithComponent(applog.ComponentSheets),
	}
}

// Start begins the mirroring loop. Returns an error if already running.
func (m *SheetMirror) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sheet mirror is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.runLoop(ctx)

	m.logger.InfoContext(ctx, "Sheet mirror started",
		"min_interval", m.config.MinInterval,
		"retry_interval", m.config.RetryInterval)
	return nil
}

// Stop stops the loop and waits for the write in progress, if any.
func (m *SheetMirror) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	stopCh, doneCh := m.stopCh, m.doneCh
	m.running = false
	m.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		m.logger.InfoContext(ctx, "Sheet mirror stopped")
		return nil
	case <-ctx.Done():
		m.logger.WarnContext(ctx, "Sheet mirror stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the mirror loop is running
func (m *SheetMirror) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Writes returns how many times the sheet was written.
func (m *SheetMirror) Writes() int {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	return m.writes
}

// SyncNow writes the sheet when the source received a remote snapshot since
// the last successful write. It reports whether a write happened.
func (m *SheetMirror) SyncNow(ctx context.Context) (bool, error) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	snap := m.source.Snapshot()
	if snap.UserID == "" {
		return false, nil
	}
	key := fmt.Sprintf("%s|%d", snap.UserID, snap.Generation)
	if key == m.lastKey {
		return false, nil
	}

	confirmed := make([]core.Transaction, 0, len(snap.Items))
	for _, tx := range snap.Items {
		if !tx.IsPlaceholder() {
			confirmed = append(confirmed, tx)
		}
	}
	records := core.Filter(confirmed, m.config.Range)

	ref, err := export.WriteSheet(ctx, m.writer, records, m.source.Location())
	if err != nil {
		return false, err
	}
	m.lastKey = key
	m.writes++

	m.logger.InfoContext(ctx, "Sheet mirrored",
		applog.FieldUserID, snap.UserID,
		applog.FieldCount, len(records),
		"range", ref)
	return true, nil
}

func (m *SheetMirror) runLoop(ctx context.Context) {
	defer close(m.doneCh)

	for {
		changed := m.source.Changed()

		var retry <-chan time.Time
		if _, err := m.SyncNow(ctx); err != nil {
			m.logger.LogError(ctx, "Failed to mirror sheet", err, applog.OpExport, nil)
			retry = time.After(m.config.RetryInterval)
		}

		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-retry:
			continue
		case <-changed:
		}

		// let bursts of changes settle into one write
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(m.config.MinInterval):
		}
	}
}
