package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration is one versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema in apply order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create permission tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
					code TEXT NOT NULL UNIQUE,
					resource TEXT NOT NULL,
					action TEXT NOT NULL,
					description TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(resource, action)
				);

				CREATE TABLE IF NOT EXISTS user_permissions (
					user_id TEXT NOT NULL,
					permission_id TEXT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					company_id TEXT NOT NULL,
					scope TEXT NOT NULL CHECK (scope IN ('self', 'branch', 'area', 'all')),
					granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, permission_id, company_id, scope)
				);

				CREATE INDEX IF NOT EXISTS idx_user_permissions_user ON user_permissions(user_id);
			`,
		},
		{
			Version:     2,
			Description: "Create branch and area tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS branches (
					id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
					code TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					location TEXT,
					category TEXT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					sort_order INT NOT NULL DEFAULT 0,
					deleted_at TIMESTAMPTZ
				);

				CREATE TABLE IF NOT EXISTS areas (
					id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
					code TEXT NOT NULL,
					name TEXT NOT NULL,
					company_id TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					sort_order INT NOT NULL DEFAULT 0,
					deleted_at TIMESTAMPTZ,
					UNIQUE(company_id, code)
				);

				CREATE TABLE IF NOT EXISTS area_branches (
					area_id TEXT NOT NULL REFERENCES areas(id) ON DELETE CASCADE,
					branch_id TEXT NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
					is_primary BOOLEAN NOT NULL DEFAULT FALSE,
					assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (area_id, branch_id)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create user territory tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_branches (
					user_id TEXT NOT NULL,
					branch_id TEXT NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
					assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, branch_id)
				);

				CREATE TABLE IF NOT EXISTS user_areas (
					user_id TEXT NOT NULL,
					area_id TEXT NOT NULL REFERENCES areas(id) ON DELETE CASCADE,
					assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, area_id)
				);
			`,
		},
	}
}

// ApplyMigrations runs every migration not yet recorded in
// caseboard_migrations, each in its own transaction. It returns the number
// applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) (int, error) {
	if log == nil {
		log = logrus.New()
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS caseboard_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM caseboard_migrations ORDER BY version")
	if err != nil {
		return 0, fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	rows.Close()

	count := 0
	for _, m := range Migrations() {
		if applied[m.Version] {
			continue
		}

		log.WithField("version", m.Version).Infof("Applying migration: %s", m.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return count, fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return count, fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO caseboard_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return count, fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return count, fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
		count++
	}

	return count, nil
}
