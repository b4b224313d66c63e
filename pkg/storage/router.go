package storage

import (
	"context"
	"log/slog"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

// Router picks a backing store per principal: guests read and write the
// local store, signed-in users the remote one. Remote may be nil when no
// database is configured, in which case everyone is local.
type Router struct {
	local  *LocalStore
	remote Store
	logger *slog.Logger
}

func NewRouter(local *LocalStore, remote Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{local: local, remote: remote, logger: logger}
}

func (r *Router) pick(p core.Principal) Store {
	if p.IsGuest() || r.remote == nil {
		return r.local
	}
	return r.remote
}

func (r *Router) List(ctx context.Context, p core.Principal) ([]core.ChatSession, error) {
	return r.pick(p).List(ctx, p)
}

func (r *Router) Get(ctx context.Context, p core.Principal, id string) (*core.ChatSession, error) {
	return r.pick(p).Get(ctx, p, id)
}

func (r *Router) Save(ctx context.Context, p core.Principal, s *core.ChatSession) error {
	return r.pick(p).Save(ctx, p, s)
}

func (r *Router) Delete(ctx context.Context, p core.Principal, id string) error {
	return r.pick(p).Delete(ctx, p, id)
}

// MigrateGuestToAccount copies every local session to the user's remote
// store and then clears the local one. Copy-then-clear makes the operation
// at least once: a crash mid-way re-copies on the next sign-in, and the
// session id being the natural key keeps the re-copy idempotent. Copied
// sessions are stamped at migration time like any other save.
func (r *Router) MigrateGuestToAccount(ctx context.Context, p core.Principal) (int, error) {
	if p.IsGuest() {
		return 0, core.NewInvalidRequestError("migration requires a signed-in user", nil)
	}
	if r.remote == nil {
		return 0, core.NewStorageError("no remote store configured", nil)
	}
	sessions, err := r.local.List(ctx, core.Guest)
	if err != nil {
		return 0, err
	}
	for i := range sessions {
		if err := r.remote.Save(ctx, p, &sessions[i]); err != nil {
			return i, err
		}
	}
	if err := r.local.Clear(ctx); err != nil {
		return len(sessions), err
	}
	if len(sessions) > 0 {
		r.logger.Info("migrated guest sessions", "count", len(sessions), "user", p.UserID)
	}
	return len(sessions), nil
}
