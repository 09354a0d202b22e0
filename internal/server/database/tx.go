package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTxConflict is returned when a transaction keeps losing serialization
// races after the maximum number of retries.
var ErrTxConflict = errors.New("transaction conflict")

// serializationFailure is the SQLSTATE code Postgres reports when a
// serializable transaction must be retried.
const serializationFailure = "40001"

const maxTxAttempts = 5

// WithSerializable runs fn inside a SERIALIZABLE transaction, committing on
// success and rolling back on error. Serialization failures are retried up
// to a bounded attempt count. Maximum isolation keeps every multi-row
// mutation (including hierarchy cascades) an all-or-nothing unit without
// explicit row locking.
func (db *DB) WithSerializable(ctx context.Context, fn func(tx pgx.Tx) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == serializationFailure {
			continue
		}
		return err
	}
	return ErrTxConflict
}
