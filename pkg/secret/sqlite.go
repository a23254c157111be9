package secret

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta(key TEXT PRIMARY KEY, value BLOB NOT NULL);
CREATE TABLE IF NOT EXISTS secrets(
	service TEXT NOT NULL,
	account TEXT NOT NULL,
	value BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY(service, account)
);`

// SQLite is a file-backed Store. Values are sealed with a key derived from a
// passphrase and a per-database salt.
type SQLite struct {
	mu     sync.Mutex
	db     *sql.DB
	sealer *sealer
}

var _ SwapStore = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the secret database at path.
func OpenSQLite(ctx context.Context, path, passphrase string) (*SQLite, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create secret dir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open secret db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping secret db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init secret schema: %w", err)
	}
	salt, err := loadSalt(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s, err := newSealer(passphrase, salt)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, sealer: s}, nil
}

func loadSalt(ctx context.Context, db *sql.DB) ([]byte, error) {
	fresh, err := newSalt()
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO meta(key, value) VALUES('salt', ?)`, fresh); err != nil {
		return nil, fmt.Errorf("store salt: %w", err)
	}
	var salt []byte
	if err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='salt'`).Scan(&salt); err != nil {
		return nil, fmt.Errorf("load salt: %w", err)
	}
	return salt, nil
}

func (s *SQLite) Get(ctx context.Context, service, account string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE service=? AND account=?`, service, account).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read secret %s: %w", key(service, account), err)
	}
	plain, err := s.sealer.open(sealed)
	if err != nil {
		return nil, false, fmt.Errorf("read secret %s: %w", key(service, account), err)
	}
	return plain, true, nil
}

func (s *SQLite) Set(ctx context.Context, service, account string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sealed, err := s.sealer.seal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO secrets(service, account, value, updated_at) VALUES(?,?,?,?)
		ON CONFLICT(service, account) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		service, account, sealed, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write secret %s: %w", key(service, account), err)
	}
	return nil
}

func (s *SQLite) SetIfAbsent(ctx context.Context, service, account string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sealed, err := s.sealer.seal(value)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO secrets(service, account, value, updated_at) VALUES(?,?,?,?)
		ON CONFLICT(service, account) DO NOTHING`,
		service, account, sealed, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("write secret %s: %w", key(service, account), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write secret %s: %w", key(service, account), err)
	}
	return n == 1, nil
}

func (s *SQLite) Delete(ctx context.Context, service, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE service=? AND account=?`, service, account); err != nil {
		return fmt.Errorf("delete secret %s: %w", key(service, account), err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
