package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/config"
	"github.com/parsascontentcorner/modboard/internal/database"
)

// StartPostgres starts a PostgreSQL TestContainer and returns it with its connection string.
// The caller terminates the container.
func StartPostgres(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get connection string: %w", err)
	}

	return pgContainer, dsn, nil
}

// SetupTestDB creates a PostgreSQL TestContainer, runs both migration sets, and returns a database connection.
// Returns the DB connection, a cleanup function, and any error encountered.
//
// Usage:
//
//	db, cleanup, err := testutil.SetupTestDB(ctx)
//	require.NoError(t, err)
//	defer cleanup()
func SetupTestDB(ctx context.Context) (*database.DB, func(), error) {
	db, _, cleanup, err := SetupTestDBWithURL(ctx)
	return db, cleanup, err
}

// SetupTestDBWithURL is SetupTestDB that also returns the connection string,
// for components that open their own connections such as the NOTIFY listener.
func SetupTestDBWithURL(ctx context.Context) (*database.DB, string, func(), error) {
	pgContainer, dsn, err := StartPostgres(ctx)
	if err != nil {
		return nil, "", nil, err
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          dsn,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	db, err := database.NewDB(cfg, logger)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, "", nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, set := range []database.MigrationSet{database.SchemaMigrations, database.SessionMigrations} {
		if err := db.RunMigrations(set); err != nil {
			_ = db.Close()
			_ = pgContainer.Terminate(ctx)
			return nil, "", nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close db", zap.Error(err))
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			logger.Error("failed to terminate container", zap.Error(err))
		}
	}

	return db, dsn, cleanup, nil
}

// TruncateTables removes all data from all tables except the migration tables.
// Useful for cleaning up between tests without recreating the entire database.
func TruncateTables(ctx context.Context, db *database.DB) error {
	tables := []string{
		"sessions",
		"oauth_states",
		"users",
		"members",
		"points",
		"message_stats",
		"daily_activity",
		"warnings",
		"notifications",
		"audits",
		"presence_snapshots",
		"achievements",
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}
