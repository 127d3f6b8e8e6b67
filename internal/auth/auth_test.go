package auth

import (
	"context"
	"errors"
	"testing"
)

func TestLocalNotifiesListeners(t *testing.T) {
	l := NewLocal()
	var seen []*Identity
	unsub := l.OnAuthChange(func(id *Identity) { seen = append(seen, id) })

	if err := l.SignIn(context.Background(), Identity{ID: "u1", Email: "a@b.c"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := l.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(seen))
	}
	if seen[0] != nil || seen[1] == nil || seen[1].ID != "u1" || seen[2] != nil {
		t.Fatalf("unexpected notifications: %+v", seen)
	}
	if seen[1].DisplayName != "Usuário" {
		t.Fatalf("expected default display name, got %q", seen[1].DisplayName)
	}

	unsub()
	_ = l.SignIn(context.Background(), Identity{ID: "u2"})
	if len(seen) != 3 {
		t.Fatalf("listener called after unsubscribe")
	}
	if l.CurrentUser().ID != "u2" {
		t.Fatalf("unexpected current user")
	}
}

func TestLocalRejectsEmptyIdentity(t *testing.T) {
	err := NewLocal().SignIn(context.Background(), Identity{})
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Code != CodeMissingIdentity {
		t.Fatalf("expected missing identity error, got %v", err)
	}
}

func TestCurrentUserIsACopy(t *testing.T) {
	l := NewLocal()
	_ = l.SignIn(context.Background(), Identity{ID: "u1"})
	l.CurrentUser().ID = "changed"
	if l.CurrentUser().ID != "u1" {
		t.Fatalf("current user mutated through returned pointer")
	}
}
