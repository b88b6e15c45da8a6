package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

// Dialect is the SQL flavour behind a Database.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Database holds the pages/rules/apps tables. Postgres is the production
// store; SQLite keeps single-host installs and tests dependency free.
type Database struct {
	DB      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// ParseURL picks the driver and DSN for a DATABASE_URL.
//
//	postgres://… | postgresql://…   -> lib/pq
//	sqlite://path | sqlite::memory: -> modernc sqlite with foreign keys on
func ParseURL(url string) (Dialect, string, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return "", "", errors.New("empty database url")
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DialectPostgres, url, nil
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "sqlite:"):
		path := strings.TrimPrefix(strings.TrimPrefix(url, "sqlite://"), "sqlite:")
		if path == "" {
			return "", "", fmt.Errorf("sqlite url %q has no path", url)
		}
		return DialectSQLite, "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
	}
	return "", "", fmt.Errorf("unsupported database url scheme in %q", redactURL(url))
}

// Open connects and verifies the connection, retrying the first ping.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Database, error) {
	dialect, dsn, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	driver := "postgres"
	if dialect == DialectSQLite {
		driver = "sqlite"
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if dialect == DialectSQLite {
		// One connection: SQLite serialises writers anyway, and an in-memory
		// database only exists for the connection that created it.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	d := &Database{DB: sqlDB, dialect: dialect, logger: logger}
	if err := d.PingWithRetry(ctx, 3, 2*time.Second); err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info("✅ database connected", zap.String("dialect", string(dialect)))
	return d, nil
}

// PingWithRetry pings up to maxRetries times, sleeping delay in between.
func (d *Database) PingWithRetry(ctx context.Context, maxRetries int, delay time.Duration) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = d.DB.PingContext(ctx); err == nil {
			return nil
		}
		d.logger.Warn("database ping failed",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
}

func (d *Database) Dialect() Dialect {
	return d.dialect
}

func (d *Database) Close() error {
	return d.DB.Close()
}

func (d *Database) migrationProvider() (*goose.Provider, error) {
	dir := "migrations/postgres"
	gooseDialect := goose.DialectPostgres
	if d.dialect == DialectSQLite {
		dir = "migrations/sqlite"
		gooseDialect = goose.DialectSQLite3
	}
	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(gooseDialect, d.DB, fsys)
}

// Migrate applies every pending migration.
func (d *Database) Migrate(ctx context.Context) error {
	provider, err := d.migrationProvider()
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	for _, r := range results {
		d.logger.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.Duration("took", r.Duration),
		)
	}
	return nil
}

// Rollback reverts the most recent migration.
func (d *Database) Rollback(ctx context.Context) error {
	provider, err := d.migrationProvider()
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	result, err := provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	d.logger.Info("migration rolled back", zap.Int64("version", result.Source.Version))
	return nil
}

// MigrationState is one line of `moderatorctl migrate status`.
type MigrationState struct {
	Version int64
	Applied bool
	Path    string
}

func (d *Database) MigrationStatus(ctx context.Context) ([]MigrationState, error) {
	provider, err := d.migrationProvider()
	if err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate status: %w", err)
	}
	out := make([]MigrationState, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationState{
			Version: s.Source.Version,
			Applied: s.State == goose.StateApplied,
			Path:    s.Source.Path,
		})
	}
	return out, nil
}

// rebind turns ? placeholders into $n for Postgres.
func (d *Database) rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func redactURL(url string) string {
	if at := strings.LastIndex(url, "@"); at >= 0 {
		if scheme := strings.Index(url, "://"); scheme >= 0 && scheme < at {
			return url[:scheme+3] + "***" + url[at:]
		}
	}
	return url
}
