package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"vitae/internal/config"
	"vitae/internal/services"
)

// Store manages job persistence backed by SQLite or PostgreSQL.
type Store struct {
	db      *sql.DB
	pool    *pgxpool.Pool
	dialect dialect
	dsn     string
}

// dialect captures the few statements that differ between backends.
type dialect struct {
	name string
	// lockClause is appended to the claim candidate subquery.
	lockClause string
	// positional rewrites ? placeholders to $1, $2, ...
	positional bool
}

var (
	sqliteDialect   = dialect{name: config.StoreDriverSQLite}
	postgresDialect = dialect{name: config.StoreDriverPostgres, lockClause: " FOR UPDATE SKIP LOCKED", positional: true}
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	postgresDialTimeout     = 10 * time.Second
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	query = s.rebind(query)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// queryJobWithRetry runs a statement returning at most one job row. It
// returns (nil, nil) when no row matched.
func (s *Store) queryJobWithRetry(ctx context.Context, query string, args ...any) (*Job, error) {
	ctx = ensureContext(ctx)
	query = s.rebind(query)
	var job *Job
	err := retryOnBusy(ctx, func() error {
		var scanErr error
		job, scanErr = scanJob(s.db.QueryRowContext(ctx, query, args...))
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Open initializes or connects to the job database selected by cfg.Store.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	ctx = ensureContext(ctx)
	var (
		store *Store
		err   error
	)
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite, "":
		store, err = openSQLite(cfg)
	case config.StoreDriverPostgres:
		store, err = openPostgres(ctx, cfg)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "open",
			fmt.Sprintf("unsupported store driver %q", cfg.Store.Driver), nil)
	}
	if err != nil {
		return nil, err
	}
	if err := store.initSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func openSQLite(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	dbPath := cfg.StoreDSN()
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	pragmas := url.Values{}
	pragmas.Add("_pragma", "journal_mode(WAL)")
	pragmas.Add("_pragma", "busy_timeout(5000)")
	pragmas.Add("_pragma", "foreign_keys(1)")
	db, err := sql.Open("sqlite", "file:"+dbPath+"?"+pragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer connection serializes claims within the process; WAL keeps
	// readers in other processes (the CLI) unblocked.
	db.SetMaxOpenConns(1)
	return &Store{db: db, dialect: sqliteDialect, dsn: dbPath}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*Store, error) {
	dsn := cfg.StoreDSN()
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "jobs", "open", "parse postgres dsn", err)
	}
	if cfg.Store.MaxConns > 0 {
		pc.MaxConns = int32(cfg.Store.MaxConns)
	}
	if cfg.Store.MinConns > 0 {
		pc.MinConns = int32(cfg.Store.MinConns)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "vitae"

	dialCtx, cancel := context.WithTimeout(ctx, postgresDialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{
		db:      stdlib.OpenDBFromPool(pool),
		pool:    pool,
		dialect: postgresDialect,
		dsn:     pc.ConnConfig.Host + "/" + pc.ConnConfig.Database,
	}, nil
}

// Driver returns the backend name.
func (s *Store) Driver() string {
	return s.dialect.name
}

// Location returns the database file (SQLite) or host/database (PostgreSQL).
// Credentials are never included.
func (s *Store) Location() string {
	return s.dsn
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping job store: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// rebind rewrites ? placeholders for backends that use positional
// parameters. Queries in this package never contain literal question marks.
func (s *Store) rebind(query string) string {
	if !s.dialect.positional || !strings.Contains(query, "?") {
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
