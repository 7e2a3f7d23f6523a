// Package repository opens the bun database behind the resource
// repository and applies the embedded migrations for its dialect.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-fhir-auth"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/migrate"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Config is the persistence section the manager needs.
type Config interface {
	GetDriver() string
	GetDSN() string
	GetDebug() bool
	GetPingTimeout() time.Duration
}

// OpenDB opens and pings the database named by cfg.
func OpenDB(ctx context.Context, cfg Config) (*bun.DB, error) {
	var db *bun.DB

	switch cfg.GetDriver() {
	case DialectSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.GetDSN())
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to open sqlite database")
		}
		// sqlite serializes writers; a single connection keeps in memory
		// databases shared across the pool.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DialectPostgres:
		sqldb, err := sql.Open("pgx", cfg.GetDSN())
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to open postgres database")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, goerrors.New(
			fmt.Sprintf("unsupported persistence driver %q", cfg.GetDriver()),
			goerrors.CategoryBadInput,
		).WithTextCode("UNSUPPORTED_DRIVER")
	}

	if cfg.GetDebug() {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.GetPingTimeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "database unreachable")
	}

	return db, nil
}

// Migrate applies the pending migrations for dialect and returns the
// names of the ones it ran.
func Migrate(ctx context.Context, db *bun.DB, dialect string) ([]string, error) {
	fsys, err := auth.GetDialectMigrationsFS(dialect)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "missing migrations for dialect").
			WithMetadata(map[string]any{"dialect": dialect})
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(fsys); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to init migration tables")
	}

	if err := migrator.Lock(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to lock migrations")
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to apply migrations")
	}

	applied := make([]string, 0, len(group.Migrations))
	for _, m := range group.Migrations {
		applied = append(applied, m.Name)
	}
	return applied, nil
}

// NewRepositoryManager opens cfg, migrates it and returns the wired
// repository manager.
func NewRepositoryManager(ctx context.Context, cfg Config, metrics *auth.Metrics, opts ...auth.ResourceRepositoryOption) (auth.RepositoryManager, *bun.DB, error) {
	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if _, err := Migrate(ctx, db, cfg.GetDriver()); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	manager := auth.NewRepositoryManager(db, metrics, opts...)
	if err := manager.Validate(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return manager, db, nil
}
