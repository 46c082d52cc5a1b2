package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapStorageError_Nil(t *testing.T) {
	if err := MapStorageError("get", nil); err != nil {
		t.Errorf("MapStorageError(nil) = %v, want nil", err)
	}
}

func TestMapStorageError_Codes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: fmt.Errorf("wrapped: %w", context.Canceled), wantCode: ErrCodeCanceled},
		{name: "no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{
			name:     "connection exception",
			err:      &pgconn.PgError{Code: pgerrcode.ConnectionFailure},
			wantCode: ErrCodeUnavailable,
		},
		{
			name:     "too many connections",
			err:      &pgconn.PgError{Code: pgerrcode.TooManyConnections},
			wantCode: ErrCodeUnavailable,
		},
		{
			name:     "undefined table",
			err:      &pgconn.PgError{Code: pgerrcode.UndefinedTable},
			wantCode: ErrCodeStorage,
		},
		{
			name:     "other pg error",
			err:      &pgconn.PgError{Code: pgerrcode.UniqueViolation},
			wantCode: ErrCodeStorage,
		},
		{
			name:     "network error",
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			wantCode: ErrCodeUnavailable,
		},
		{name: "plain error", err: errors.New("disk full"), wantCode: ErrCodeStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapStorageError("set", tt.err)
			if got := GetCode(err); got != tt.wantCode {
				t.Errorf("MapStorageError() code = %v, want %v", got, tt.wantCode)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("MapStorageError() should wrap original error %v", tt.err)
			}
		})
	}
}

func TestMapStorageError_UndefinedTableHint(t *testing.T) {
	err := MapStorageError("get", &pgconn.PgError{Code: pgerrcode.UndefinedTable})
	if !strings.Contains(err.Error(), "schema setup") {
		t.Errorf("expected schema hint in %q", err.Error())
	}
}
