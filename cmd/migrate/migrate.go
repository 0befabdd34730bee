package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// migrationFile is one .sql file from the migrations directory.
type migrationFile struct {
	Version string
	SQL     string
}

// pending reads every non-empty .sql file in dir in lexical order.
func pending(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	files := make([]migrationFile, 0, len(names))
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", n, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		files = append(files, migrationFile{Version: strings.TrimSuffix(n, ".sql"), SQL: string(data)})
	}
	return files, nil
}

type migrator struct {
	db *sql.DB
}

// apply runs each file not yet recorded in schema_migrations, one
// transaction per file, stopping at the first failure.
func (m *migrator) apply(ctx context.Context, files []migrationFile) (applied, skipped int, err error) {
	if _, err := m.db.ExecContext(ctx, createVersionTable); err != nil {
		return 0, 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	done, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, f := range files {
		if done[f.Version] {
			skipped++
			continue
		}
		if err := m.applyOne(ctx, f); err != nil {
			return applied, skipped, err
		}
		fmt.Printf("  %s ... OK\n", f.Version)
		applied++
	}
	return applied, skipped, nil
}

func (m *migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

func (m *migrator) applyOne(ctx context.Context, f migrationFile) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", f.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, f.SQL); err != nil {
		return fmt.Errorf("apply %s: %w", f.Version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, f.Version); err != nil {
		return fmt.Errorf("record %s: %w", f.Version, err)
	}
	return tx.Commit()
}

// governanceTables are the tables the migrations create.
var governanceTables = []string{
	"ab_experiments",
	"campaign_send_quotas",
	"campaign_variants",
	"schema_migrations",
	"send_events",
	"suppression_entries",
	"variant_assignments",
	"variant_stats",
	"workspace_send_quotas",
}

// tables lists which governance tables exist in the public schema.
func (m *migrator) tables(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename = ANY($1) ORDER BY tablename`,
		"{"+strings.Join(governanceTables, ",")+"}")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
