// Package store defines the document store the sync engine reads from and
// writes to, and the codec between store documents and transactions.
package store

import "context"

// Field names of a transaction document.
const (
	FieldDescription = "description"
	FieldAmount      = "amount"
	FieldCategory    = "category"
	FieldType        = "type"
	FieldStatus      = "status"
	FieldDate        = "date"
	FieldCreatedAt   = "createdAt"
)

type (
	// Document is one stored record of a user's transaction collection.
	Document struct {
		ID     string
		Fields map[string]any
	}

	// Unsubscribe cancels a subscription. It is safe to call more than once.
	Unsubscribe func()

	// DocumentStore holds one transaction collection per user
	// (users/{userID}/transactions).
	DocumentStore interface {
		// Subscribe delivers the full collection ordered by date descending,
		// first as an initial snapshot and again after every change. onError
		// is called at most once, after which no more snapshots arrive.
		Subscribe(ctx context.Context, userID string, onChange func([]Document), onError func(error)) (Unsubscribe, error)

		// Add stores a new document and returns its store-assigned id.
		Add(ctx context.Context, userID string, fields map[string]any) (string, error)

		// Delete removes a document. Deleting a missing id is not an error.
		Delete(ctx context.Context, userID string, id string) error
	}

	// Refresher is implemented by stores that can re-deliver a user's
	// collection to its subscribers on demand.
	Refresher interface {
		Refresh(ctx context.Context, userID string) error
	}
)
