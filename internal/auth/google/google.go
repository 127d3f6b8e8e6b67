// Package google signs users in with Google ID tokens.
package google

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"

	"seara/internal/auth"
	applog "seara/internal/log"
)

// ValidateFunc verifies a token for an audience. idtoken.Validate in production.
type ValidateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// Authenticator turns verified Google ID tokens into the current identity.
type Authenticator struct {
	*auth.Local
	clientID string
	validate ValidateFunc
	logger   *applog.Logger
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates an Authenticator for the OAuth client id tokens are issued to.
func New(clientID string, logger *applog.Logger) *Authenticator {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Authenticator{
		Local:    auth.NewLocal(),
		clientID: clientID,
		validate: idtoken.Validate,
		logger:   logger.WithComponent(applog.ComponentAuth),
	}
}

// WithValidator replaces the token validator.
func (a *Authenticator) WithValidator(v ValidateFunc) *Authenticator {
	a.validate = v
	return a
}

// SignInWithIDToken verifies the token and makes its subject the current user.
func (a *Authenticator) SignInWithIDToken(ctx context.Context, token string) (*auth.Identity, error) {
	if a.clientID == "" {
		return nil, &auth.AuthError{Code: auth.CodeConfigurationMiss, Err: errors.New("google client id is not configured")}
	}
	payload, err := a.validate(ctx, token, a.clientID)
	if err != nil {
		a.logger.WarnContext(ctx, "Google ID token rejected",
			applog.FieldOperation, applog.OpSignIn,
			applog.FieldError, err)
		return nil, &auth.AuthError{Code: auth.CodeInvalidToken, Err: err}
	}
	id, err := IdentityFromPayload(payload)
	if err != nil {
		return nil, err
	}
	if err := a.SignIn(ctx, id); err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "Signed in with Google",
		applog.FieldUserID, id.ID,
		applog.FieldOperation, applog.OpSignIn)
	return a.CurrentUser(), nil
}

// IdentityFromPayload maps verified token claims to an Identity.
func IdentityFromPayload(p *idtoken.Payload) (auth.Identity, error) {
	if p == nil || p.Subject == "" {
		return auth.Identity{}, &auth.AuthError{Code: auth.CodeMissingIdentity, Err: fmt.Errorf("token has no subject")}
	}
	return auth.Identity{
		ID:          p.Subject,
		DisplayName: claim(p, "name"),
		Email:       claim(p, "email"),
		PhotoURL:    claim(p, "picture"),
	}, nil
}

func claim(p *idtoken.Payload, key string) string {
	s, _ := p.Claims[key].(string)
	return s
}
