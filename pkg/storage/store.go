// Package storage persists chat sessions: a badger-backed local store for
// guests, a Postgres store for signed-in users, and a router that picks one
// per principal and migrates guest history on sign-in.
package storage

import (
	"context"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

// Store persists chat sessions for a principal. Get returns (nil, nil) when
// the session does not exist. List orders by most recently updated first.
// Save upserts and stamps the session's UpdatedAt.
type Store interface {
	List(ctx context.Context, p core.Principal) ([]core.ChatSession, error)
	Get(ctx context.Context, p core.Principal, id string) (*core.ChatSession, error)
	Save(ctx context.Context, p core.Principal, s *core.ChatSession) error
	Delete(ctx context.Context, p core.Principal, id string) error
}
