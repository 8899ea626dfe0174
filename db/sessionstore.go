package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	app "github.com/etitcombe/tweeter"
	"github.com/etitcombe/tweeter/rand"
	_ "github.com/mattn/go-sqlite3" // sqlite
)

//go:embed migration/*.sql
var migrationFS embed.FS

// SessionStore stores remember tokens and the handle each one is bound to.
type SessionStore struct {
	db  *sql.DB
	dsn string
}

// NewSessionStore creates a new instance of a SessionStore.
func NewSessionStore(dsn string) (*SessionStore, error) {
	return &SessionStore{dsn: dsn}, nil
}

// Open opens the connection to the database.
func (ss *SessionStore) Open() error {
	// Ensure a DSN is set before attempting to open the database.
	if ss.dsn == "" {
		return fmt.Errorf("dsn required")
	}

	// Make the parent directory unless using an in-memory db.
	if ss.dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(ss.dsn), 0700); err != nil {
			return err
		}
	}

	var err error
	if ss.db, err = sql.Open("sqlite3", ss.dsn); err != nil {
		return err
	}

	// WAL lets readers resolve sessions while a login is being written.
	if _, err := ss.db.Exec(`PRAGMA journal_mode = wal;`); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	if _, err := ss.db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		return fmt.Errorf("busy timeout pragma: %w", err)
	}

	if err := ss.migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

// Close closes the connection to the data store.
func (ss *SessionStore) Close() error {
	if ss.db != nil {
		return ss.db.Close()
	}
	return nil
}

// Create binds a new remember token to handle and returns the token.
func (ss *SessionStore) Create(ctx context.Context, handle string) (string, error) {
	token, err := rand.RememberToken()
	if err != nil {
		return "", &app.StorageError{Op: "generate session token", Err: err}
	}
	_, err = ss.db.ExecContext(ctx, `INSERT INTO session (token, handle) VALUES (?, ?)`, token, handle)
	if err != nil {
		return "", &app.StorageError{Op: "create session", Err: err}
	}
	return token, nil
}

// Handle returns the handle bound to token, or app.ErrNotFound.
func (ss *SessionStore) Handle(ctx context.Context, token string) (string, error) {
	var handle string
	err := ss.db.QueryRowContext(ctx, `SELECT handle FROM session WHERE token = ?`, token).Scan(&handle)
	if errors.Is(err, sql.ErrNoRows) {
		return "", app.ErrNotFound
	}
	if err != nil {
		return "", &app.StorageError{Op: "read session", Err: err}
	}
	return handle, nil
}

// Delete removes the binding for token. Deleting an unknown token is not an
// error.
func (ss *SessionStore) Delete(ctx context.Context, token string) error {
	if _, err := ss.db.ExecContext(ctx, `DELETE FROM session WHERE token = ?`, token); err != nil {
		return &app.StorageError{Op: "delete session", Err: err}
	}
	return nil
}

// DeleteHandle removes every session bound to handle.
func (ss *SessionStore) DeleteHandle(ctx context.Context, handle string) error {
	if _, err := ss.db.ExecContext(ctx, `DELETE FROM session WHERE handle = ?`, handle); err != nil {
		return &app.StorageError{Op: "delete sessions", Err: err}
	}
	return nil
}

// migrate sets up migration tracking and executes pending migration files.
//
// Migration files are embedded from the migration folder and are executed in
// lexicographical order. Once a migration is run, its name is stored in the
// 'migrations' table so it is not re-executed. Migrations run in a
// transaction to prevent partial migrations.
func (ss *SessionStore) migrate() error {
	if _, err := ss.db.Exec(`CREATE TABLE IF NOT EXISTS migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("cannot create migrations table: %w", err)
	}

	names, err := fs.Glob(migrationFS, "migration/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ss.migrateFile(name); err != nil {
			return fmt.Errorf("migration error: name=%q err=%w", name, err)
		}
	}
	return nil
}

// migrateFile runs a single migration file within a transaction. On success,
// the migration file name is saved to the "migrations" table to prevent
// re-running.
func (ss *SessionStore) migrateFile(name string) error {
	tx, err := ss.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM migrations WHERE name = ?`, name).Scan(&n); err != nil {
		return err
	} else if n != 0 {
		return nil // already run migration, skip
	}

	buf, err := migrationFS.ReadFile(name)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(string(buf)); err != nil {
		return err
	}

	if _, err := tx.Exec(`INSERT INTO migrations (name) VALUES (?)`, name); err != nil {
		return err
	}

	return tx.Commit()
}
