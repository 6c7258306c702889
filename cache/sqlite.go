package cache

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/utils"
)

type SQLiteConfig struct {
	Path string `json:"path"`
	WAL  bool   `json:"wal"`
}

// SQLiteStore keeps values in a single kv table and set members in kv_set.
type SQLiteStore struct {
	db     *sql.DB
	logger types.Logger
	config *SQLiteConfig
	state  atomic.Value
}

var _ types.KVStore = (*SQLiteStore)(nil)
var _ types.SetStore = (*SQLiteStore)(nil)

func NewSQLiteStore(logger types.Logger, config *types.StoreConfig) (*SQLiteStore, error) {
	sqliteConfig := &SQLiteConfig{Path: ":memory:"}

	if config != nil && config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, sqliteConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal sqlite store config")
		}
	}

	db, err := sql.Open("sqlite3", sqliteConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open SQLite database")
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger,
		config: sqliteConfig,
	}
	store.state.Store(StateStopped)

	if err := store.initDatabase(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("Failed to close database during cleanup", zap.Error(closeErr))
		}
		return nil, types.WrapError(err, "failed to initialize database")
	}

	return store, nil
}

func (s *SQLiteStore) initDatabase() error {
	// every connection to :memory: opens a fresh database
	s.db.SetMaxOpenConns(1)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB,
			PRIMARY KEY (namespace, key)
		)`,
		`CREATE TABLE IF NOT EXISTS kv_set (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			member TEXT NOT NULL,
			PRIMARY KEY (namespace, key, member)
		)`,
	}
	if s.config.WAL {
		statements = append(statements, "PRAGMA journal_mode=WAL")
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, namespace, key string) (bool, error) {
	if err := validateKey(namespace, key); err != nil {
		return false, err
	}

	var found int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM kv WHERE namespace = ? AND key = ?
		 UNION ALL SELECT 1 FROM kv_set WHERE namespace = ? AND key = ? LIMIT 1`,
		namespace, key, namespace, key,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, types.NewBackendError("exists", namespace, key, err)
	}

	return true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := validateKey(namespace, key); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE namespace = ? AND key = ?", namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewBackendError("get", namespace, key, err)
	}
	if value == nil {
		value = []byte{}
	}

	return value, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO kv (namespace, key, value) VALUES (?, ?, ?)", namespace, key, value)
	return types.NewBackendError("put", namespace, key, err)
}

func (s *SQLiteStore) Delete(ctx context.Context, namespace, key string) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}

	return s.inTx(ctx, "delete", namespace, key, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE namespace = ? AND key = ?", namespace, key); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM kv_set WHERE namespace = ? AND key = ?", namespace, key)
		return err
	})
}

func (s *SQLiteStore) DeleteAll(ctx context.Context, namespace string) error {
	if namespace == "" {
		return types.ErrStoreNamespaceEmpty
	}

	return s.inTx(ctx, "delete_all", namespace, "", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE namespace = ?", namespace); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM kv_set WHERE namespace = ?", namespace)
		return err
	})
}

func (s *SQLiteStore) SetAdd(ctx context.Context, namespace, key string, members ...string) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	return s.inTx(ctx, "set_add", namespace, key, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO kv_set (namespace, key, member) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, member := range members {
			if _, err := stmt.ExecContext(ctx, namespace, key, member); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) SetMembers(ctx context.Context, namespace, key string) ([]string, error) {
	if err := validateKey(namespace, key); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT member FROM kv_set WHERE namespace = ? AND key = ? ORDER BY rowid", namespace, key)
	if err != nil {
		return nil, types.NewBackendError("set_members", namespace, key, err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			s.logger.Error("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var members []string
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, types.NewBackendError("set_members", namespace, key, err)
		}
		members = append(members, member)
	}

	return members, types.NewBackendError("set_members", namespace, key, rows.Err())
}

func (s *SQLiteStore) Start() error {
	if !s.state.CompareAndSwap(StateStopped, StateRunning) {
		return types.ErrServerAlreadyRunning
	}

	s.logger.Info("SQLite store started", zap.String("path", s.config.Path))
	return nil
}

func (s *SQLiteStore) Stop() error {
	if !s.state.CompareAndSwap(StateRunning, StateStopped) {
		return types.ErrServerNotRunning
	}

	if err := s.db.Close(); err != nil {
		return types.WrapError(err, "failed to close SQLite database")
	}

	s.logger.Info("SQLite store stopped")
	return nil
}

func (s *SQLiteStore) IsRunning() bool {
	return s.state.Load().(State) == StateRunning
}

func (s *SQLiteStore) inTx(ctx context.Context, op, namespace, key string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.NewBackendError(op, namespace, key, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return types.NewBackendError(op, namespace, key, err)
	}

	return types.NewBackendError(op, namespace, key, tx.Commit())
}
