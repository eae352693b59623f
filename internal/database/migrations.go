package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one versioned schema script, e.g. "001_expando_schema.sql"
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator brings the expando schema up to date
type Migrator struct {
	db    *sql.DB
	files fs.FS
}

// NewMigrator creates a migrator over the embedded schema scripts
func NewMigrator(db *sql.DB) *Migrator {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return &Migrator{db: db, files: sub}
}

const schemaMigrationsDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

// Pending lists the migrations that have not been applied yet, oldest first
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	if _, err := m.db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[int]struct{})
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		done[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}

	all, err := m.scripts()
	if err != nil {
		return nil, err
	}
	pending := all[:0]
	for _, mig := range all {
		if _, ok := done[mig.Version]; !ok {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

func (m *Migrator) scripts() ([]Migration, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			log.Warn().Str("file", name).Msg("skipping migration with unversioned name")
			continue
		}
		body, err := fs.ReadFile(m.files, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		out = append(out, Migration{Version: version, Name: strings.TrimSuffix(name, ".sql"), SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Up applies every pending migration, each in its own transaction
func (m *Migrator) Up(ctx context.Context) error {
	pending, err := m.Pending(ctx)
	if err != nil {
		return err
	}

	for _, mig := range pending {
		err := Transaction(m.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", mig.Name, err)
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return err
		}
		log.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("applied migration")
	}
	return nil
}
