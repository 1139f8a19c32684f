// Package database provides database connection and migration functionality.
package database

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ieltsprep/internal/config"
	"ieltsprep/internal/observability"
	contextutils "ieltsprep/internal/utils"

	// PostgreSQL driver for database/sql.
	_ "github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // golang-migrate postgres driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // golang-migrate file source

	"go.nhat.io/otelsql"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Manager handles database connection setup and migrations.
type Manager struct {
	logger *observability.Logger
}

var (
	otelDriverNameCache string
	otelDriverOnce      sync.Once
	otelDriverErr       error
)

// NewManager creates a new database manager with the provided logger.
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{
		logger: logger,
	}
}

// DefaultDatabaseConfig returns the default database configuration.
// TEST_DATABASE_URL takes precedence so tests never touch the real data.
func DefaultDatabaseConfig() config.DatabaseConfig {
	cfg := config.DatabaseConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: config.DatabaseConnMaxLifetime,
	}
	if testURL := os.Getenv("TEST_DATABASE_URL"); testURL != "" {
		cfg.URL = testURL
	}
	return cfg
}

// InitDB initializes and returns a database connection with migrations.
func (dm *Manager) InitDB(databaseURL string) (result0 *sql.DB, err error) {
	_, span := observability.TraceDatabaseFunction(context.Background(), "init_db",
		attribute.String("db.name", extractDatabaseName(databaseURL)),
		attribute.String("db.system", "postgresql"),
	)
	defer observability.FinishSpan(span, &err)

	cfg := DefaultDatabaseConfig()
	cfg.URL = databaseURL
	db, err := dm.InitDBWithoutMigrations(cfg)
	if err != nil {
		return nil, err
	}
	if err := dm.RunMigrations(db, cfg.URL); err != nil {
		return nil, err
	}
	return db, nil
}

// InitDBWithConfig initializes a connection with explicit pool settings and
// runs migrations.
func (dm *Manager) InitDBWithConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := dm.InitDBWithoutMigrations(cfg)
	if err != nil {
		return nil, err
	}
	if err := dm.RunMigrations(db, cfg.URL); err != nil {
		return nil, err
	}
	return db, nil
}

// InitDBWithoutMigrations opens an instrumented connection pool.
func (dm *Manager) InitDBWithoutMigrations(cfg config.DatabaseConfig) (result0 *sql.DB, err error) {
	ctx, span := observability.TraceDatabaseFunction(context.Background(), "init_db_without_migrations",
		attribute.String("db.name", extractDatabaseName(cfg.URL)),
	)
	defer observability.FinishSpan(span, &err)

	// Register the OpenTelemetry SQL driver once per process.
	otelDriverOnce.Do(func() {
		otelDriverNameCache, otelDriverErr = otelsql.Register("postgres",
			otelsql.WithDatabaseName(extractDatabaseName(cfg.URL)),
			otelsql.TraceQueryWithArgs(),
			otelsql.WithSystem(semconv.DBSystemPostgreSQL),
			otelsql.TraceRowsAffected(),
		)
	})
	if otelDriverErr != nil {
		return nil, contextutils.WrapError(otelDriverErr, "failed to register otelsql driver")
	}

	db, err := sql.Open(otelDriverNameCache, cfg.URL)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to open database connection")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dm.logger.Error(ctx, "Failed to close database connection after ping failure", closeErr)
		}
		return nil, contextutils.WrapError(err, "failed to ping database")
	}

	dm.logger.Info(ctx, "Database connection established", map[string]interface{}{
		"max_open_conns": cfg.MaxOpenConns,
		"max_idle_conns": cfg.MaxIdleConns,
	})
	return db, nil
}

// RunMigrations applies any pending golang-migrate migrations.
func (dm *Manager) RunMigrations(db *sql.DB, databaseURL string) (err error) {
	_, span := observability.TraceDatabaseFunction(context.Background(), "run_migrations",
		attribute.String("db.system", "postgresql"),
	)
	defer observability.FinishSpan(span, &err)

	migrationsPath, err := dm.migrationsPath()
	if err != nil {
		return err
	}

	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return contextutils.WrapError(err, "failed to initialize migrations")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			dm.logger.Warn(context.Background(), "Failed to close migration handles", map[string]interface{}{
				"source_error":   errString(srcErr),
				"database_error": errString(dbErr),
			})
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return contextutils.WrapError(err, "failed to apply migrations")
	}

	dm.logger.Info(context.Background(), "Database migrations completed", nil)
	return nil
}

// migrationsPath locates the migrations directory relative to the working
// directory, walking up so tests run from package directories still find it.
func (dm *Manager) migrationsPath() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", contextutils.WrapError(err, "failed to determine working directory")
	}
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", contextutils.WrapError(contextutils.ErrInternalError, "no migrations directory found")
		}
		dir = parent
	}
}

// extractDatabaseName extracts the database name from a connection string.
func extractDatabaseName(databaseURL string) string {
	if u, err := url.Parse(databaseURL); err == nil && u.Path != "" {
		if dbName := strings.TrimPrefix(u.Path, "/"); dbName != "" {
			return dbName
		}
	}
	return "ieltsprep_db"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
