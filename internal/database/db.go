// Package database provides PostgreSQL access for the dashboard: connection
// pooling, embedded migrations, the session and OAuth state stores, the
// aggregation reads and the NOTIFY listener.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/config"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationSet is one independently versioned group of migrations
type MigrationSet struct {
	Dir   string
	Table string
}

var (
	// SchemaMigrations creates the guild tables read by the dashboard
	SchemaMigrations = MigrationSet{Dir: "migrations/schema", Table: "schema_migrations"}
	// SessionMigrations creates the session and OAuth state tables
	SessionMigrations = MigrationSet{Dir: "migrations/session", Table: "session_migrations"}
)

// DB wraps the database connection
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection with connection pooling
func NewDB(cfg *config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	host, name := describeURL(cfg.URL)
	logger.Info("database connection established",
		zap.String("host", host),
		zap.String("database", name),
	)

	return &DB{
		DB:     sqlDB,
		logger: logger,
	}, nil
}

// describeURL extracts loggable parts of a connection string without credentials
func describeURL(raw string) (host, name string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown", "unknown"
	}
	return u.Host, strings.TrimPrefix(u.Path, "/")
}

// Close closes the database connection
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// Health checks the database health
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// RunMigrations applies every pending migration of set from the embedded sources
func (db *DB) RunMigrations(set MigrationSet) error {
	db.logger.Info("running database migrations",
		zap.String("dir", set.Dir),
		zap.String("table", set.Table),
	)

	source, err := iofs.New(migrationsFS, set.Dir)
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{
		MigrationsTable: set.Table,
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			db.logger.Info("database schema is already up to date", zap.String("table", set.Table))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		db.logger.Warn("failed to get migration version", zap.Error(err))
		return nil
	}

	db.logger.Info("database migrations completed successfully",
		zap.String("table", set.Table),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)

	return nil
}
