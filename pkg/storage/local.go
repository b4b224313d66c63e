package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

const sessionPrefix = "session/"

// LocalStore keeps guest sessions in an embedded badger database. The
// principal argument is ignored: everything in a local store belongs to the
// guest on this machine.
type LocalStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// LocalOptions configures a LocalStore.
type LocalOptions struct {
	// Dir is the badger data directory. Required unless InMemory.
	Dir string

	// InMemory skips disk persistence, for tests.
	InMemory bool

	Logger *slog.Logger
}

func NewLocalStore(opts LocalOptions) (*LocalStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, core.NewStorageError("local store requires a data directory", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(badgerLogger{logger})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, core.NewStorageError("open local store", err)
	}
	return &LocalStore{db: db, logger: logger}, nil
}

func (l *LocalStore) List(ctx context.Context, _ core.Principal) ([]core.ChatSession, error) {
	var sessions []core.ChatSession
	err := l.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var s core.ChatSession
			if err := json.Unmarshal(val, &s); err != nil {
				// A corrupt record should not hide the rest.
				l.logger.Warn("skipping unreadable session", "key", string(it.Item().Key()), "err", err)
				continue
			}
			sessions = append(sessions, s)
		}
		return nil
	})
	if err != nil {
		return nil, core.NewStorageError("list sessions", err)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (l *LocalStore) Get(ctx context.Context, _ core.Principal, id string) (*core.ChatSession, error) {
	var val []byte
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewStorageError("get session", err)
	}
	var s core.ChatSession
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, core.NewStorageError("decode session", err)
	}
	return &s, nil
}

func (l *LocalStore) Save(ctx context.Context, _ core.Principal, s *core.ChatSession) error {
	if s.ID == "" {
		return core.NewInvalidRequestError("session id is required", nil)
	}
	s.UpdatedAt = time.Now()
	val, err := json.Marshal(s)
	if err != nil {
		return core.NewStorageError("encode session", err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(s.ID), val)
	})
	if err != nil {
		return core.NewStorageError("save session", err)
	}
	return nil
}

func (l *LocalStore) Delete(ctx context.Context, _ core.Principal, id string) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return core.NewStorageError("delete session", err)
	}
	return nil
}

// Clear removes every stored session. Used after a guest's history has been
// migrated to their account.
func (l *LocalStore) Clear(ctx context.Context) error {
	err := l.db.DropPrefix([]byte(sessionPrefix))
	if err != nil {
		return core.NewStorageError("clear sessions", err)
	}
	return nil
}

func (l *LocalStore) Close() error {
	return l.db.Close()
}

func sessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

// badgerLogger routes badger output through slog, dropping the chatty
// info/debug levels.
type badgerLogger struct {
	logger *slog.Logger
}

func (b badgerLogger) Errorf(f string, v ...interface{}) {
	b.logger.Error("badger", "msg", strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (b badgerLogger) Warningf(f string, v ...interface{}) {
	b.logger.Warn("badger", "msg", strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
