package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned by mutations attempted with nobody signed in.
	ErrUnauthenticated = errors.New("user not authenticated")
	// ErrWriteFailed matches every *WriteError.
	ErrWriteFailed = errors.New("write failed")
	// ErrStreamFailed matches every *StreamError.
	ErrStreamFailed = errors.New("subscription stream failed")
)

// WriteError is a create or delete rejected by the store. The optimistic
// change has already been rolled back when it is returned.
type WriteError struct {
	Op  string
	ID  string
	Err error
}

func (e *WriteError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s transaction %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s transaction: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWriteFailed }

// StreamError reports a subscription that stopped delivering. The cache keeps
// the last snapshot it received.
type StreamError struct {
	UserID string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("transactions stream for user %s: %v", e.UserID, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

func (e *StreamError) Is(target error) bool { return target == ErrStreamFailed }
