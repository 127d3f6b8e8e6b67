// Package auth defines the signed-in identity consumed by the sync engine.
package auth

import (
	"context"
	"fmt"
	"sync"
)

// Identity is the signed-in user. ID is the scope key of all their data.
type Identity struct {
	ID          string
	DisplayName string
	Email       string
	PhotoURL    string
}

// Authenticator is the session source the sync engine depends on.
type Authenticator interface {
	// CurrentUser returns the signed-in identity, or nil.
	CurrentUser() *Identity
	// OnAuthChange registers fn, calls it with the current identity and
	// again on every sign-in or sign-out. The returned func unregisters it.
	OnAuthChange(fn func(*Identity)) (unsubscribe func())
}

// Error codes reported in AuthError.
const (
	CodeInvalidToken      = "invalid-token"
	CodeConfigurationMiss = "configuration-not-found"
	CodeMissingIdentity   = "missing-identity"
)

// AuthError is a sign-in failure reported by an identity provider.
type AuthError struct {
	Code string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Code, e.Err)
	}
	return "auth: " + e.Code
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Local is an Authenticator driven by explicit SignIn and SignOut calls.
// Providers embed it to publish the identities they verify.
type Local struct {
	mu        sync.Mutex
	current   *Identity
	listeners map[int]func(*Identity)
	nextID    int
}

var _ Authenticator = (*Local)(nil)

func NewLocal() *Local {
	return &Local{listeners: make(map[int]func(*Identity))}
}

func (l *Local) CurrentUser() *Identity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyIdentity(l.current)
}

func (l *Local) OnAuthChange(fn func(*Identity)) func() {
	l.mu.Lock()
	if l.listeners == nil {
		l.listeners = make(map[int]func(*Identity))
	}
	l.nextID++
	id := l.nextID
	l.listeners[id] = fn
	current := copyIdentity(l.current)
	l.mu.Unlock()

	fn(current)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

// SignIn makes id the current user and notifies listeners.
func (l *Local) SignIn(_ context.Context, id Identity) error {
	if id.ID == "" {
		return &AuthError{Code: CodeMissingIdentity}
	}
	if id.DisplayName == "" {
		id.DisplayName = "Usuário"
	}
	l.set(&id)
	return nil
}

// SignOut clears the current user and notifies listeners.
func (l *Local) SignOut(_ context.Context) error {
	l.set(nil)
	return nil
}

func (l *Local) set(id *Identity) {
	l.mu.Lock()
	l.current = id
	fns := make([]func(*Identity), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(copyIdentity(id))
	}
}

func copyIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
