package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const lockTimeout = "3s"

// WithUserLock runs fn inside a transaction that holds a FOR UPDATE lock on
// the user's row. All balance mutations for a user serialize on this lock;
// lock acquisition is bounded by lockTimeout so a stuck writer cannot wedge
// every request for that user.
func WithUserLock(ctx context.Context, db *sqlx.DB, userID uuid.UUID, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin transaction", ErrInternal)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("rollback after panic failed")
			}
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%s'", lockTimeout)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: set lock timeout", ErrInternal)
	}

	var lockedID uuid.UUID
	err = tx.GetContext(ctx, &lockedID, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return translatePgError(err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error().Err(rbErr).Str("user_id", userID.String()).Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return translatePgError(err)
	}

	return nil
}

// translatePgError maps transient Postgres failures onto retryable
// sentinels. 55P03 is lock_not_available, 40001 is serialization_failure,
// 40P01 is deadlock_detected.
func translatePgError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03":
			return ErrLockTimeout
		case "40001", "40P01":
			return ErrConcurrentModification
		}
	}
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

// isRetryable reports whether the error is a transient lock/serialization
// failure worth another attempt with a fresh balance read.
func isRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrConcurrentModification)
}
