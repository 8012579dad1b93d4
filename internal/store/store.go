// Package store provides session persistence: an interface plus the SQLite
// implementation.
package store

import (
	"context"
	"errors"

	"runpost/internal/model"
)

var (
	// ErrNotFound means no session exists for the given id.
	ErrNotFound = errors.New("session not found")

	// ErrDuplicateSessionID means a different session already occupies the
	// id. That is a clock or entropy failure, fatal to the commit.
	ErrDuplicateSessionID = errors.New("duplicate session id")
)

// ListParams holds parameters for listing sessions.
type ListParams struct {
	Limit int
}

// Store defines session persistence: one record per session, retrievable by
// id, timestamp-sortable.
type Store interface {
	// Put persists a session. Replaying the exact same session is a
	// suppressed no-op; an id collision with a different session fails
	// with ErrDuplicateSessionID.
	Put(ctx context.Context, s *model.Session) error

	// Get retrieves a session by id.
	Get(ctx context.Context, id string) (*model.Session, error)

	// List returns sessions, newest first.
	List(ctx context.Context, p ListParams) ([]model.Session, error)

	// Rm deletes a session.
	Rm(ctx context.Context, id string) error

	// Close closes the store.
	Close() error
}
