package errors

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapStorageError maps key-value backend errors to AppError instances.
// It handles:
// - Context timeouts/cancellations → Timeout/Canceled
// - pgx.ErrNoRows → NotFound
// - PostgreSQL connection exceptions and network dial errors → Unavailable
// - Undefined session table → Storage with a schema hint
// - Anything else → Storage
//
// The op argument names the failed operation ("get", "set", ...).
func MapStorageError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrapf(err, ErrCodeTimeout, "storage %s timed out", op)
	}
	if errors.Is(err, context.Canceled) {
		return Wrapf(err, ErrCodeCanceled, "storage %s canceled", op)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return Wrapf(err, ErrCodeNotFound, "storage %s: key not found", op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(op, pgErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrapf(err, ErrCodeUnavailable, "storage %s: backend unreachable", op)
	}

	return Wrapf(err, ErrCodeStorage, "storage %s failed", op)
}

func mapPgError(op string, pgErr *pgconn.PgError) error {
	switch {
	case pgerrcode.IsConnectionException(pgErr.Code),
		pgerrcode.IsInsufficientResources(pgErr.Code),
		pgErr.Code == pgerrcode.CannotConnectNow,
		pgErr.Code == pgerrcode.AdminShutdown:
		return Wrapf(pgErr, ErrCodeUnavailable, "storage %s: database unavailable", op)
	case pgErr.Code == pgerrcode.UndefinedTable:
		return Wrapf(pgErr, ErrCodeStorage, "storage %s: session table missing, run schema setup", op)
	default:
		return Wrapf(pgErr, ErrCodeStorage, "storage %s failed", op)
	}
}
