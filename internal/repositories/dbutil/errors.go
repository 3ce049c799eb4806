package dbutil

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gitlab.com/TitanInd/fleet-metrics/internal/lib"
)

const (
	UndefinedTableErrorCode  = "42P01"
	UndefinedSchemaErrorCode = "3F000"
	UndefinedColumnErrorCode = "42703"
)

var (
	ErrRelationMissing = errors.New("relation does not exist")
	ErrNotConfigured   = errors.New("database is not configured")
)

// WrapError classifies a pgx error. A missing table, schema or column is reported as
// ErrRelationMissing, the rest is returned as is.
func WrapError(err error) error {
	var pgErr *pgconn.PgError

	if err == nil {
		return nil
	} else if errors.Is(err, ErrRelationMissing) {
		return err
	} else if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case UndefinedTableErrorCode, UndefinedSchemaErrorCode, UndefinedColumnErrorCode:
			return lib.WrapError(ErrRelationMissing, err)
		}
	}

	return err
}

// IsRelationMissing reports whether err means the backing table is absent
func IsRelationMissing(err error) bool {
	return errors.Is(err, ErrRelationMissing)
}

// IsTimeout reports whether err was caused by a deadline or cancellation
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err)
}
