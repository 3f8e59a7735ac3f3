// Package store implements the persistence adapter (spec.md C11): user
// records, per-user string variables, and schema migrations. Spec.md §1
// treats the persistent key/value and user table as an abstract
// collaborator; this package provides the one concrete adapter
// (sqlite, via github.com/mattn/go-sqlite3) the rest of the module needs
// to exercise the schema spec.md §6 pins down.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "store")

// ErrNotFound is returned by lookups that find no matching row and were
// not asked to create one.
var ErrNotFound = errors.New("store: not found")

// Account is a locally known user (spec.md data model). Once RemoteID is
// non-empty it may never change; a rename only updates ScreenName.
type Account struct {
	ID                int64
	RemoteID          string // empty until paired.
	ScreenName        string // case-insensitive unique once set.
	LocalPasswordHash string
	LocalPasswordSalt string
	Token             string
	TokenSecret       string
}

// HasLocalPassword reports whether this account can authenticate via a
// local password hash.
func (a *Account) HasLocalPassword() bool { return a.LocalPasswordHash != "" }

// HasDelegatedToken reports whether this account has a stored delegated
// token pair.
func (a *Account) HasDelegatedToken() bool { return a.Token != "" && a.TokenSecret != "" }

// Store is the persistence adapter interface: get_user, set_var, get_var,
// commit (spec.md §4.11).
type Store interface {
	// GetUser looks an account up by remote id first, falling back to a
	// screen-name match (and backfilling the remote id onto that row, per
	// original_source/passerd's data.py get_user). If create is true and
	// no match is found, a new Account is created.
	GetUser(ctx context.Context, remoteID, screenName string, create bool) (*Account, error)
	SaveAccount(ctx context.Context, a *Account) error

	SetVar(ctx context.Context, accountID int64, name, value string) error
	GetVar(ctx context.Context, accountID int64, name string) (string, bool, error)

	Commit() error
	CreateTables(ctx context.Context) error
	Close() error
}

// SQLiteStore is the sqlite-backed Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite database at path and runs
// CreateTables/migrations.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// The sqlite3 driver does not support concurrent writers; the rest of
	// the system already serializes writes behind this single adapter
	// (spec.md §5), so a single connection is sufficient and avoids
	// "database is locked" errors.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.CreateTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CreateTables creates the schema (if missing) and runs any unrun
// migrations (spec.md §4.11, §6).
func (s *SQLiteStore) CreateTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			remote_id TEXT UNIQUE,
			screen_name TEXT UNIQUE,
			local_password_hash TEXT,
			delegated_token TEXT,
			delegated_token_secret TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS user_vars (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			value TEXT,
			UNIQUE(user_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS identity_cache (
			remote_id TEXT PRIMARY KEY,
			screen_name TEXT,
			display_name TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS data_migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: create tables: %w", err)
		}
	}

	return RunMigrations(ctx, s.db)
}

// GetUser implements Store.GetUser.
func (s *SQLiteStore) GetUser(ctx context.Context, remoteID, screenName string, create bool) (*Account, error) {
	if remoteID != "" {
		a, err := s.scanAccount(ctx, "SELECT id, remote_id, screen_name, local_password_hash, local_password_salt, delegated_token, delegated_token_secret FROM users WHERE remote_id = ?", remoteID)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if screenName != "" {
		a, err := s.scanAccount(ctx, "SELECT id, remote_id, screen_name, local_password_hash, local_password_salt, delegated_token, delegated_token_secret FROM users WHERE screen_name = ? COLLATE NOCASE", screenName)
		if err == nil {
			if remoteID != "" && a.RemoteID == "" {
				// Legacy screen-name-only row: backfill the remote id
				// rather than creating a duplicate account.
				log.WithField("screen_name", screenName).Info("backfilling remote id onto legacy account")
				a.RemoteID = remoteID
				if err := s.SaveAccount(ctx, a); err != nil {
					return nil, err
				}
			}
			return a, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if !create {
		return nil, ErrNotFound
	}

	res, err := s.db.ExecContext(ctx, "INSERT INTO users (remote_id, screen_name) VALUES (?, ?)", nullIfEmpty(remoteID), nullIfEmpty(screenName))
	if err != nil {
		return nil, fmt.Errorf("store: create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Account{ID: id, RemoteID: remoteID, ScreenName: screenName}, nil
}

func (s *SQLiteStore) scanAccount(ctx context.Context, query string, arg string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, query, arg)

	var a Account
	var remoteID, screenName, hash, salt, token, secret sql.NullString
	if err := row.Scan(&a.ID, &remoteID, &screenName, &hash, &salt, &token, &secret); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.RemoteID = remoteID.String
	a.ScreenName = screenName.String
	a.LocalPasswordHash = hash.String
	a.LocalPasswordSalt = salt.String
	a.Token = token.String
	a.TokenSecret = secret.String
	return &a, nil
}

// SaveAccount persists the mutable fields of an Account. The remote id is
// never changed once recorded to a non-empty value (spec.md data model
// invariant) by any caller that respects this API; SaveAccount itself
// does not re-check it.
func (s *SQLiteStore) SaveAccount(ctx context.Context, a *Account) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET remote_id = ?, screen_name = ?, local_password_hash = ?,
		local_password_salt = ?, delegated_token = ?, delegated_token_secret = ? WHERE id = ?`,
		nullIfEmpty(a.RemoteID), nullIfEmpty(a.ScreenName), nullIfEmpty(a.LocalPasswordHash),
		nullIfEmpty(a.LocalPasswordSalt), nullIfEmpty(a.Token), nullIfEmpty(a.TokenSecret), a.ID)
	if err != nil {
		return fmt.Errorf("store: save account: %w", err)
	}
	return nil
}

// SetVar implements Store.SetVar (lazy creation on first write).
func (s *SQLiteStore) SetVar(ctx context.Context, accountID int64, name, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO user_vars (user_id, name, value) VALUES (?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET value = excluded.value`, accountID, name, value)
	if err != nil {
		return fmt.Errorf("store: set var %s: %w", name, err)
	}
	return nil
}

// GetVar implements Store.GetVar.
func (s *SQLiteStore) GetVar(ctx context.Context, accountID int64, name string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT value FROM user_vars WHERE user_id = ? AND name = ?", accountID, name)
	var v sql.NullString
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v.String, true, nil
}

// Commit is a no-op for the sqlite adapter: every write above already
// commits immediately. It exists to satisfy the Store interface, which
// spec.md §4.11 describes against a session-scoped SQLAlchemy-style
// transaction in the original implementation.
func (s *SQLiteStore) Commit() error { return nil }

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
