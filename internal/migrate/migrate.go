// Package migrate applies the embedded schema for the totals export.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Load returns the embedded migrations ordered by version. Files must be
// named like 0001_description.sql.
func Load() ([]Migration, error) {
	files, err := fs.Glob(migrationsFS, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(files))
	seen := make(map[int]string, len(files))
	for _, f := range files {
		base := filepath.Base(f)
		ver, err := parseVersion(base)
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename %q: %w", base, err)
		}
		if prev, ok := seen[ver]; ok {
			return nil, fmt.Errorf("migration version %d used by %s and %s", ver, prev, base)
		}
		seen[ver] = base
		b, err := fs.ReadFile(migrationsFS, f)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Version: ver, Name: base, SQL: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Apply runs every migration not yet recorded in schema_migrations.
func Apply(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	migrations, err := Load()
	if err != nil {
		return err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := loadApplied(ctx, db)
	if err != nil {
		return fmt.Errorf("load applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			log.Debug("migration already applied", slog.Int("version", m.Version), slog.String("file", m.Name))
			continue
		}
		log.Info("applying migration", slog.Int("version", m.Version), slog.String("file", m.Name))
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("applying %s: %w", m.Name, err)
		}
		if err := recordApplied(ctx, db, m.Version); err != nil {
			return fmt.Errorf("recording %s: %w", m.Name, err)
		}
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		applied_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB;`
	_, err := db.ExecContext(ctx, ddl)
	return err
}

func loadApplied(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		m[v] = true
	}
	return m, rows.Err()
}

func recordApplied(ctx context.Context, db *sql.DB, version int) error {
	_, err := db.ExecContext(ctx, "INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)", version, time.Now().UTC())
	return err
}

func parseVersion(name string) (int, error) {
	i := strings.IndexByte(name, '_')
	if i <= 0 {
		return 0, fmt.Errorf("missing version prefix")
	}
	return strconv.Atoi(name[:i])
}
