package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations contains all database migrations in order.
// Each migration has a version key and SQL to execute.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_users",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id            BIGSERIAL    PRIMARY KEY,
				login_id      VARCHAR(64)  NOT NULL UNIQUE,
				password_hash VARCHAR(255),
				name          VARCHAR(255) NOT NULL DEFAULT '',
				mail          VARCHAR(255) NOT NULL DEFAULT '',
				external      VARCHAR(64)  NOT NULL DEFAULT '',
				admin_flag    BOOLEAN      NOT NULL DEFAULT FALSE,
				disabled_flag BOOLEAN      NOT NULL DEFAULT FALSE,
				created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		Version: "000002_create_upload_requests",
		SQL: `
			CREATE TABLE IF NOT EXISTS upload_requests (
				id             VARCHAR(36)  PRIMARY KEY,
				upload_token   VARCHAR(36)  NOT NULL UNIQUE,
				title          VARCHAR(255) NOT NULL,
				expires_at     DATE,
				max_files      INTEGER      NOT NULL,
				max_total_size BIGINT       NOT NULL,
				created_by     VARCHAR(64)  NOT NULL,
				created_at     TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_upload_requests_created_by ON upload_requests(created_by);
		`,
	},
	{
		Version: "000003_create_files",
		SQL: `
			CREATE TABLE IF NOT EXISTS files (
				file_id           VARCHAR(36)  PRIMARY KEY,
				upload_request_id VARCHAR(36)  NOT NULL REFERENCES upload_requests(id) ON DELETE CASCADE,
				original_name     VARCHAR(255) NOT NULL,
				file_size         BIGINT       NOT NULL,
				uploaded_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_files_upload_request_id ON files(upload_request_id);
		`,
	},
	{
		Version: "000004_create_download_requests",
		SQL: `
			CREATE TABLE IF NOT EXISTS download_requests (
				id                BIGSERIAL    PRIMARY KEY,
				upload_request_id VARCHAR(36)  NOT NULL REFERENCES upload_requests(id) ON DELETE CASCADE,
				download_token    VARCHAR(36)  NOT NULL UNIQUE,
				expire_days       INTEGER,
				expires_at        TIMESTAMPTZ,
				max_downloads     INTEGER      NOT NULL,
				auth_type         VARCHAR(8)   NOT NULL DEFAULT 'none',
				auth_password     VARCHAR(255),
				auth_email        TEXT,
				created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_download_requests_upload_request_id
				ON download_requests(upload_request_id);
		`,
	},
	{
		Version: "000005_create_download_counts",
		SQL: `
			CREATE TABLE IF NOT EXISTS download_counts (
				download_request_id BIGINT      NOT NULL REFERENCES download_requests(id) ON DELETE CASCADE,
				file_id             VARCHAR(36) NOT NULL,
				download_count      INTEGER     NOT NULL DEFAULT 0,
				PRIMARY KEY (download_request_id, file_id)
			);
		`,
	},
	{
		Version: "000006_create_otp_challenges",
		SQL: `
			CREATE TABLE IF NOT EXISTS otp_challenges (
				id         BIGSERIAL    PRIMARY KEY,
				token      VARCHAR(36)  NOT NULL,
				email      VARCHAR(255) NOT NULL,
				code_hash  VARCHAR(255) NOT NULL,
				expires_at TIMESTAMPTZ  NOT NULL,
				verified   BOOLEAN      NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_otp_challenges_lookup
				ON otp_challenges(token, email, verified, created_at DESC);
		`,
	},
	{
		// Access logs carry no foreign keys: the audit trail must survive
		// deletion of the records it refers to.
		Version: "000007_create_access_logs",
		SQL: `
			CREATE TABLE IF NOT EXISTS access_logs (
				id                  BIGSERIAL    PRIMARY KEY,
				accessed_at         TIMESTAMPTZ  NOT NULL,
				actor               VARCHAR(255),
				action              VARCHAR(255),
				upload_request_id   VARCHAR(36),
				download_request_id BIGINT,
				file_id             VARCHAR(36),
				result              VARCHAR(16)  NOT NULL,
				http_status         INTEGER      NOT NULL,
				ip_address          VARCHAR(64)  NOT NULL DEFAULT '',
				user_agent          TEXT         NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_access_logs_upload_request_id
				ON access_logs(upload_request_id);
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version)
	}

	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
