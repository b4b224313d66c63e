package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

type fakeRemote struct {
	sessions map[string]map[string]core.ChatSession // userID -> id -> session
	saveErr  error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{sessions: make(map[string]map[string]core.ChatSession)}
}

func (f *fakeRemote) List(ctx context.Context, p core.Principal) ([]core.ChatSession, error) {
	var out []core.ChatSession
	for _, s := range f.sessions[p.UserID] {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRemote) Get(ctx context.Context, p core.Principal, id string) (*core.ChatSession, error) {
	s, ok := f.sessions[p.UserID][id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeRemote) Save(ctx context.Context, p core.Principal, s *core.ChatSession) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.sessions[p.UserID] == nil {
		f.sessions[p.UserID] = make(map[string]core.ChatSession)
	}
	f.sessions[p.UserID][s.ID] = *s
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, p core.Principal, id string) error {
	delete(f.sessions[p.UserID], id)
	return nil
}

func TestRouterGuestGoesLocal(t *testing.T) {
	local := newTestLocal(t)
	remote := newFakeRemote()
	r := NewRouter(local, remote, nil)
	ctx := context.Background()

	if err := r.Save(ctx, core.Guest, sessionAt("g1", "Guest", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(remote.sessions) != 0 {
		t.Fatal("guest session reached the remote store")
	}
	got, err := local.Get(ctx, core.Guest, "g1")
	if err != nil || got == nil {
		t.Fatalf("guest session not in local store: %v, %v", got, err)
	}
}

func TestRouterUserGoesRemote(t *testing.T) {
	local := newTestLocal(t)
	remote := newFakeRemote()
	r := NewRouter(local, remote, nil)
	ctx := context.Background()
	user := core.Principal{UserID: "u1"}

	if err := r.Save(ctx, user, sessionAt("s1", "Mine", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := remote.sessions["u1"]["s1"]; !ok {
		t.Fatal("user session not in remote store")
	}
	if got, _ := local.Get(ctx, core.Guest, "s1"); got != nil {
		t.Fatal("user session leaked into local store")
	}
}

func TestRouterUserFallsBackToLocalWithoutRemote(t *testing.T) {
	local := newTestLocal(t)
	r := NewRouter(local, nil, nil)
	ctx := context.Background()
	user := core.Principal{UserID: "u1"}

	if err := r.Save(ctx, user, sessionAt("s1", "Mine", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := local.Get(ctx, core.Guest, "s1")
	if err != nil || got == nil {
		t.Fatalf("session not stored locally without a remote: %v, %v", got, err)
	}
}

func TestMigrateGuestToAccount(t *testing.T) {
	local := newTestLocal(t)
	remote := newFakeRemote()
	r := NewRouter(local, remote, nil)
	ctx := context.Background()
	user := core.Principal{UserID: "u1"}

	for _, id := range []string{"a", "b", "c"} {
		if err := r.Save(ctx, core.Guest, sessionAt(id, id, time.Now())); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	moved, err := r.MigrateGuestToAccount(ctx, user)
	if err != nil {
		t.Fatalf("MigrateGuestToAccount: %v", err)
	}
	if moved != 3 {
		t.Fatalf("moved = %d, want 3", moved)
	}
	if len(remote.sessions["u1"]) != 3 {
		t.Fatalf("remote has %d sessions, want 3", len(remote.sessions["u1"]))
	}
	localLeft, err := local.List(ctx, core.Guest)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(localLeft) != 0 {
		t.Fatalf("local store still has %d sessions after migration", len(localLeft))
	}
}

func TestMigrateKeepsLocalOnRemoteFailure(t *testing.T) {
	local := newTestLocal(t)
	remote := newFakeRemote()
	remote.saveErr = errors.New("remote down")
	r := NewRouter(local, remote, nil)
	ctx := context.Background()

	if err := r.Save(ctx, core.Guest, sessionAt("a", "A", time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := r.MigrateGuestToAccount(ctx, core.Principal{UserID: "u1"}); err == nil {
		t.Fatal("migration succeeded despite remote failure")
	}
	// Nothing cleared: the next sign-in retries the copy.
	localLeft, err := local.List(ctx, core.Guest)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(localLeft) != 1 {
		t.Fatalf("local sessions = %d after failed migration, want 1", len(localLeft))
	}
}

func TestMigrateRejectsGuestPrincipal(t *testing.T) {
	r := NewRouter(newTestLocal(t), newFakeRemote(), nil)
	if _, err := r.MigrateGuestToAccount(context.Background(), core.Guest); err == nil {
		t.Fatal("migration accepted a guest principal")
	}
}
