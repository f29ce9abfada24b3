// Package auth decides session issuance from submitted credentials using
// pluggable authentication and authorization capabilities.
package auth

import (
	"context"

	"github.com/hydromaas/hydromaas/pkg/models"
)

// Authenticator decides whether a username/secret pair is genuine.
type Authenticator interface {
	Authenticate(ctx context.Context, username, secret string) (bool, error)
}

// Authorizer decides whether an authenticated user may use an access type.
// An empty accessType means default/all access.
type Authorizer interface {
	CheckAuthorized(ctx context.Context, username, accessType string) (bool, error)
}

// AllowAll accepts every user. It exists for bootstrap and testing and is
// injected explicitly at daemon start; there is no package-level default.
type AllowAll struct{}

// Authenticate always reports success.
func (AllowAll) Authenticate(ctx context.Context, username, secret string) (bool, error) {
	return true, nil
}

// CheckAuthorized always reports success.
func (AllowAll) CheckAuthorized(ctx context.Context, username, accessType string) (bool, error) {
	return true, nil
}

// SessionStore is the slice of the session manager the handler needs. The
// backing store is an external service; errors from it are surfaced as
// SESSION_MANAGER_FAIL, never retried here.
type SessionStore interface {
	CreateSession(ipAddress, username string) (*models.Session, error)
	LookupByUsername(username string) (*models.Session, error)
	RefreshSession(sess *models.Session) error
}
