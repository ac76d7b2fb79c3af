package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"proxyencoder/internal/config"
)

// Store manages queue persistence backed by SQLite or PostgreSQL.
type Store struct {
	db       *sql.DB
	dialect  dialect
	location string
}

// queryJobs runs a SELECT returning jobColumns and scans every row.
func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	query = s.dialect.rebind(query)
	var jobs []*Job
	err := s.retry(ctx, func() error {
		jobs = nil
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Open initializes or connects to the queue database selected by
// broker.backend.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("queue: config is required")
	}
	switch cfg.Broker.Backend {
	case config.BackendPostgres:
		return openPostgres(cfg.Broker.PostgresDSN)
	default:
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return openSQLite(cfg.Broker.SQLitePath)
	}
}

func openSQLite(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("queue: sqlite path is empty")
	}
	params := url.Values{}
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Set("_txlock", "immediate")
	dsn := "file:" + path + "?" + params.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	return finishOpen(db, sqliteDialect, path)
}

func openPostgres(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("queue: postgres dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	return finishOpen(db, postgresDialect, redactDSN(dsn))
}

func finishOpen(db *sql.DB, d dialect, location string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s queue: %w", d.name, err)
	}
	store := &Store{db: db, dialect: d, location: location}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// redactDSN hides the password of a postgres URL for display.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Backend returns the dialect name, "sqlite" or "postgres".
func (s *Store) Backend() string {
	return s.dialect.name
}

// Location describes where the queue lives: a file path or a redacted DSN.
func (s *Store) Location() string {
	return s.location
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
