package cache

import (
	"sync"

	"seara/internal/core"
)

// Snapshot is an immutable view of one user's cached transactions.
type Snapshot struct {
	UserID string
	// Version changes on every write to the entry and never repeats.
	Version uint64
	// Generation counts wholesale replacements delivered by the remote source.
	Generation uint64
	Items      []core.Transaction
}

// RollbackOutcome describes what Rollback did to the entry.
type RollbackOutcome int

const (
	// RollbackRestored means the prior snapshot was put back as it was.
	RollbackRestored RollbackOutcome = iota
	// RollbackUndone means later local patches were kept and only the failed one was reverted.
	RollbackUndone
	// RollbackSuperseded means a remote snapshot replaced the entry, so nothing was touched.
	RollbackSuperseded
)

func (o RollbackOutcome) String() string {
	switch o {
	case RollbackRestored:
		return "restored"
	case RollbackUndone:
		return "undone"
	case RollbackSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

type entry struct {
	version    uint64
	generation uint64
	items      []core.Transaction
}

// TransactionCache maps a user id to the ordered transactions of that user.
// Readers always get copies; the cache never hands out its internal slices.
type TransactionCache struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[string]*entry
}

func NewTransactionCache() *TransactionCache {
	return &TransactionCache{entries: make(map[string]*entry)}
}

// Snapshot returns a copy of the user's entry. Unknown users yield an empty snapshot.
func (c *TransactionCache) Snapshot(userID string) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked(userID)
}

// Replace overwrites the user's entry with items, as received from the remote source.
func (c *TransactionCache) Replace(userID string, items []core.Transaction) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(userID)
	e.items = clone(items)
	e.generation++
	e.version = c.next()
	return c.snapshotLocked(userID)
}

// Patch applies fn to a copy of the user's items and stores the result.
// It returns the snapshots taken right before and right after the patch.
func (c *TransactionCache) Patch(userID string, fn func([]core.Transaction) []core.Transaction) (prev, next Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev = c.snapshotLocked(userID)
	e := c.entryLocked(userID)
	e.items = clone(fn(clone(e.items)))
	e.version = c.next()
	return prev, c.snapshotLocked(userID)
}

// Rollback reverts a failed optimistic patch.
//
// applied is the snapshot Patch returned as next, prior the one it returned as prev.
// When a remote replacement happened after the patch the entry is left alone.
// When nothing else wrote to the entry, prior is restored exactly. Otherwise undo
// is applied to the current items so other in-flight patches survive.
func (c *TransactionCache) Rollback(userID string, applied, prior Snapshot, undo func([]core.Transaction) []core.Transaction) RollbackOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok || e.generation != applied.Generation {
		return RollbackSuperseded
	}
	if e.version == applied.Version {
		e.items = clone(prior.Items)
		e.version = c.next()
		return RollbackRestored
	}
	e.items = clone(undo(clone(e.items)))
	e.version = c.next()
	return RollbackUndone
}

// Drop removes the user's entry.
func (c *TransactionCache) Drop(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// Size returns the number of cached users.
func (c *TransactionCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TransactionCache) next() uint64 {
	c.seq++
	return c.seq
}

func (c *TransactionCache) entryLocked(userID string) *entry {
	e, ok := c.entries[userID]
	if !ok {
		e = &entry{}
		c.entries[userID] = e
	}
	return e
}

func (c *TransactionCache) snapshotLocked(userID string) Snapshot {
	e, ok := c.entries[userID]
	if !ok {
		return Snapshot{UserID: userID, Items: []core.Transaction{}}
	}
	return Snapshot{
		UserID:     userID,
		Version:    e.version,
		Generation: e.generation,
		Items:      clone(e.items),
	}
}

func clone(items []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(items))
	copy(out, items)
	return out
}
