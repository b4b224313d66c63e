package storage

import (
	"context"
	"embed"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore persists sessions per user in Postgres. Message history is
// stored as a jsonb document alongside the queryable columns.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects, runs pending migrations, and returns the store.
func NewPostgresStore(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, core.NewStorageError("parse database url", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, core.NewStorageError("connect database", err)
	}
	if err := migrate(cfg); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func migrate(cfg *pgxpool.Config) error {
	db := stdlib.OpenDB(*cfg.ConnConfig)
	defer db.Close()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return core.NewStorageError("set migration dialect", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return core.NewStorageError("run migrations", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, principal core.Principal) ([]core.ChatSession, error) {
	if principal.IsGuest() {
		return nil, core.NewInvalidRequestError("remote store requires a signed-in user", nil)
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, title, messages, created_at, updated_at
		   FROM sessions WHERE user_id = $1 ORDER BY updated_at DESC`,
		principal.UserID)
	if err != nil {
		return nil, core.NewStorageError("list sessions", err)
	}
	defer rows.Close()

	var sessions []core.ChatSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStorageError("list sessions", err)
	}
	return sessions, nil
}

func (p *PostgresStore) Get(ctx context.Context, principal core.Principal, id string) (*core.ChatSession, error) {
	if principal.IsGuest() {
		return nil, core.NewInvalidRequestError("remote store requires a signed-in user", nil)
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, title, messages, created_at, updated_at
		   FROM sessions WHERE user_id = $1 AND id = $2`,
		principal.UserID, id)
	if err != nil {
		return nil, core.NewStorageError("get session", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, core.NewStorageError("get session", err)
		}
		return nil, nil
	}
	return scanSession(rows)
}

func (p *PostgresStore) Save(ctx context.Context, principal core.Principal, s *core.ChatSession) error {
	if principal.IsGuest() {
		return core.NewInvalidRequestError("remote store requires a signed-in user", nil)
	}
	if s.ID == "" {
		return core.NewInvalidRequestError("session id is required", nil)
	}
	s.UpdatedAt = time.Now()
	messages, err := json.Marshal(s.Messages)
	if err != nil {
		return core.NewStorageError("encode messages", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO sessions (user_id, id, title, messages, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, id) DO UPDATE
		   SET title = EXCLUDED.title,
		       messages = EXCLUDED.messages,
		       updated_at = EXCLUDED.updated_at`,
		principal.UserID, s.ID, s.Title, messages, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return core.NewStorageError("save session", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, principal core.Principal, id string) error {
	if principal.IsGuest() {
		return core.NewInvalidRequestError("remote store requires a signed-in user", nil)
	}
	_, err := p.pool.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND id = $2`,
		principal.UserID, id)
	if err != nil {
		return core.NewStorageError("delete session", err)
	}
	return nil
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

func scanSession(rows pgx.Rows) (*core.ChatSession, error) {
	var (
		s        core.ChatSession
		messages []byte
	)
	if err := rows.Scan(&s.ID, &s.Title, &messages, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, core.NewStorageError("scan session", err)
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &s.Messages); err != nil {
			return nil, core.NewStorageError("decode messages", err)
		}
	}
	return &s, nil
}
