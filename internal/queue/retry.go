package queue

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Contended statements are retried with doubling delays.
const (
	retryAttempts = 5
	retryFirst    = 10 * time.Millisecond
	retryCeiling  = 200 * time.Millisecond
)

// retry runs op until it succeeds, fails with a non-transient error, or the
// attempts run out. Transient means SQLITE_BUSY on sqlite and a
// serialization failure or deadlock on postgres, both of which concurrent
// claims from several workers can provoke.
func (s *Store) retry(ctx context.Context, op func() error) error {
	delay := retryFirst
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || attempt == retryAttempts || !s.dialect.transient(err) {
			return err
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, retryCeiling)
	}
}

func (s *Store) execResult(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = s.dialect.rebind(query)
	var res sql.Result
	err := s.retry(ctx, func() error {
		var err error
		res, err = s.db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.execResult(ctx, query, args...)
	return err
}

func (d dialect) transient(err error) bool {
	if d.name == postgresDialect.name {
		return isPostgresConflict(err)
	}
	return isSQLiteBusy(err)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) && coded.Code()&0xff == 5 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// isPostgresConflict matches serialization_failure and deadlock_detected.
func isPostgresConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
