package ports

import (
	"context"

	"github.com/femto/minion-novel/pkg/domain"
)

// ListFilter narrows List results. Empty fields match everything.
type ListFilter struct {
	AppName string
	UserID  string
}

// Match reports whether key satisfies the filter.
func (f ListFilter) Match(key domain.SessionKey) bool {
	if f.AppName != "" && f.AppName != key.AppName {
		return false
	}
	if f.UserID != "" && f.UserID != key.UserID {
		return false
	}
	return true
}

// SessionStore defines the interface for persisting sessions.
// A session is stored as one document keyed by its (app, user, session) triple.
type SessionStore interface {
	// Save persists the session under session.Key.
	Save(ctx context.Context, session *domain.Session) error

	// Load retrieves the session for a key.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, key domain.SessionKey) (*domain.Session, error)

	// Delete removes the session for a key.
	Delete(ctx context.Context, key domain.SessionKey) error

	// List returns the keys of stored sessions matching the filter.
	List(ctx context.Context, filter ListFilter) ([]domain.SessionKey, error)
}
