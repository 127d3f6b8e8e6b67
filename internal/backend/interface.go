package backend

import (
	"context"
	"time"

	"seara/internal/amqp"
	"seara/internal/store"
)

// Backend is the document store the sync engine runs on. Every backend can
// be asked to re-deliver its collections.
type Backend interface {
	store.DocumentStore
	store.Refresher
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	// Notifications is the AMQP client used to fan changes out, nil when disabled.
	Notifications *amqp.Client
	Cleanup       CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath       string
	SQLitePollInterval time.Duration

	// Change notifications, optional
	AMQPURL      string
	AMQPExchange string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
