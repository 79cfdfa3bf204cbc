package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"qualtrack/internal/config"
)

type Database struct {
	DB     *sql.DB
	logger *zap.Logger
}

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*Database, error) {
	// Build PostgreSQL connection string
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connected successfully",
		zap.String("driver", cfg.Database.Driver),
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("dbname", cfg.Database.DBName),
	)

	database := &Database{
		DB:     db,
		logger: logger,
	}

	// Run migrations
	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return database.Close()
		},
	})

	return database, nil
}

var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "documents table",
		sql: `
		CREATE TABLE IF NOT EXISTS documents (
			id VARCHAR(64) PRIMARY KEY,
			file_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			personnel_id VARCHAR(64) NOT NULL DEFAULT '',
			form_type VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		`,
	},
	{
		// awaiting_role, because current_role is reserved in PostgreSQL
		name: "signature_queue table",
		sql: `
		CREATE TABLE IF NOT EXISTS signature_queue (
			id VARCHAR(64) PRIMARY KEY,
			document_id VARCHAR(64) NOT NULL DEFAULT '',
			personnel_id VARCHAR(64) NOT NULL DEFAULT '',
			document_path TEXT NOT NULL,
			form_type VARCHAR(64) NOT NULL,
			required_roles TEXT[] NOT NULL,
			completed_roles TEXT[] NOT NULL DEFAULT '{}',
			awaiting_role VARCHAR(64) NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL,
			last_action TEXT NOT NULL DEFAULT '',
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		`,
	},
	{
		name: "signature_queue inbox index",
		sql:  `CREATE INDEX IF NOT EXISTS idx_signature_queue_inbox ON signature_queue(awaiting_role, status, created_at);`,
	},
	{
		name: "api_logs table",
		sql: `
		CREATE TABLE IF NOT EXISTS api_logs (
			id BIGSERIAL PRIMARY KEY,
			endpoint TEXT NOT NULL,
			method VARCHAR(16) NOT NULL,
			request_body TEXT NOT NULL DEFAULT '',
			response_body TEXT NOT NULL DEFAULT '',
			status_code INT NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			item_id VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		`,
	},
}

func (d *Database) migrate() error {
	for _, m := range migrations {
		if _, err := d.DB.Exec(m.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", m.name, err)
		}
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}

func (d *Database) Close() error {
	return d.DB.Close()
}
