package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is a named, idempotent schema change. Spec.md §4.11 describes
// this as a "poor-man migration registry": an ordered list of named
// functions, with a data_migrations table recording which have run so
// only unrun migrations execute, each in its own transaction.
type migration struct {
	name string
	run  func(ctx context.Context, tx *sql.Tx) error
}

// migrations is a constant, compile-time-known slice (spec.md §9 "module
// level mutable state ... represent as a constant slice known at compile
// time"), kept in the order they must run.
var migrations = []migration{
	{
		name: "local_password_salt_column",
		run: func(ctx context.Context, tx *sql.Tx) error {
			return addColumnTx(ctx, tx, "users", "local_password_salt", "TEXT")
		},
	},
}

// RunMigrations runs every migration in order that has not already been
// recorded in data_migrations, each inside its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range migrations {
		if err := runOne(ctx, db, m); err != nil {
			return fmt.Errorf("store: migration %s: %w", m.name, err)
		}
	}
	return nil
}

func runOne(ctx context.Context, db *sql.DB, m migration) error {
	var count int
	row := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM data_migrations WHERE name = ?", m.name)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	log.WithField("migration", m.name).Info("running data migration")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.run(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO data_migrations (name) VALUES (?)", m.name); err != nil {
		return err
	}
	return tx.Commit()
}

// addColumnTx adds a column to a table, skipping if it already exists
// (spec.md §4.11 add_column helper).
func addColumnTx(ctx context.Context, tx *sql.Tx, table, column, ctype string) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil // already exists.
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ctype))
	return err
}
