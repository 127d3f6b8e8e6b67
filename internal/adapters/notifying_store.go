package adapters

import (
	"context"

	"seara/internal/amqp"
	applog "seara/internal/log"
	"seara/internal/store"
)

var (
	_ store.DocumentStore = (*NotifyingStore)(nil)
	_ store.Refresher     = (*NotifyingStore)(nil)
)

// NotifyingStore writes through to a document store and announces every
// successful write on the message bus, so other processes holding the same
// user's subscription reload without waiting for their next poll.
type NotifyingStore struct {
	store.DocumentStore
	publisher amqp.Publisher
	logger    *applog.Logger
}

func NewNotifyingStore(inner store.DocumentStore, publisher amqp.Publisher, logger *applog.Logger) *NotifyingStore {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &NotifyingStore{
		DocumentStore: inner,
		publisher:     publisher,
		logger:        logger.WithComponent(applog.ComponentAMQP),
	}
}

func (s *NotifyingStore) Add(ctx context.Context, userID string, fields map[string]any) (string, error) {
	id, err := s.DocumentStore.Add(ctx, userID, fields)
	if err != nil {
		return "", err
	}
	s.publish(ctx, amqp.NewTransactionChangedMessage(userID, amqp.OpCreated, id))
	return id, nil
}

func (s *NotifyingStore) Delete(ctx context.Context, userID string, id string) error {
	if err := s.DocumentStore.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.publish(ctx, amqp.NewTransactionChangedMessage(userID, amqp.OpDeleted, id))
	return nil
}

// Refresh delegates to the wrapped store when it supports refreshing.
func (s *NotifyingStore) Refresh(ctx context.Context, userID string) error {
	if r, ok := s.DocumentStore.(store.Refresher); ok {
		return r.Refresh(ctx, userID)
	}
	return nil
}

// publish never fails the write; the document is already stored.
func (s *NotifyingStore) publish(ctx context.Context, msg *amqp.TransactionChangedMessage) {
	if s.publisher == nil {
		s.logger.WarnContext(ctx, "AMQP publisher not available, skipping change message",
			applog.FieldUserID, msg.UserID)
		return
	}
	if err := s.publisher.PublishTransactionChanged(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change message",
			applog.FieldUserID, msg.UserID,
			applog.FieldTxID, msg.TransactionID,
			applog.FieldError, err)
	}
}

// RefreshOnChange returns a consumer handler that makes r re-deliver the
// collection named by each message.
func RefreshOnChange(r store.Refresher) func(context.Context, *amqp.TransactionChangedMessage) error {
	return func(ctx context.Context, msg *amqp.TransactionChangedMessage) error {
		return r.Refresh(ctx, msg.UserID)
	}
}
