// Package postgres implements repository.Store over pgx.
//
// Single-record mutations are single atomic UPDATE statements; multi-record
// units of work run in a serializable transaction retried on conflict.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"earn-platform/internal/repository"
)

// maxTxAttempts bounds conflict retries before ErrConflict surfaces.
const maxTxAttempts = 5

// DBTX is the querying surface shared by *pgxpool.Pool and pgx.Tx, so the
// same store methods run inside and outside a unit of work.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL repository.Store implementation.
type Store struct {
	db DBTX

	// pool is nil when the store is bound to an open transaction.
	pool *pgxpool.Pool
}

// New creates a Store over a connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

func (s *Store) Accounts() repository.AccountStore           { return &accounts{db: s.db} }
func (s *Store) Transactions() repository.TransactionStore   { return &transactions{db: s.db} }
func (s *Store) Referrals() repository.ReferralStore         { return &referrals{db: s.db} }
func (s *Store) Notifications() repository.NotificationStore { return &notifications{db: s.db} }
func (s *Store) Tasks() repository.TaskStore                 { return &tasks{db: s.db} }

// Atomic runs fn in one serializable transaction. Serialization failures
// and deadlocks are retried from a fresh read; fn must therefore be safe to
// run more than once.
func (s *Store) Atomic(ctx context.Context, fn func(repository.Store) error) error {
	if s.pool == nil {
		// Already inside a unit of work; run in place.
		return fn(s)
	}

	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}

		err = fn(&Store{db: tx})
		if err != nil {
			_ = tx.Rollback(ctx)
			if !retryable(err) {
				return err
			}
			lastErr = err
		} else {
			err = tx.Commit(ctx)
			if err == nil {
				return nil
			}
			if !retryable(err) {
				return err
			}
			lastErr = err
		}

		log.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Msg("Retrying unit of work after store conflict")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	return repository.ErrConflict
}

// retryable reports whether err is a transient serialization conflict.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// isUniqueViolation reports whether err is a unique-constraint violation on
// the named constraint (any constraint when name is empty).
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
