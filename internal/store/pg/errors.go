package pg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"ecowatch.org/internal/domain"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
	pgErrSerialization       = "40001"
	pgErrDeadlock            = "40P01"
	pgErrTooManyConnections  = "53300"
	pgErrAdminShutdown       = "57P01"
	pgErrCrashShutdown       = "57P02"
	pgErrCannotConnectNow    = "57P03"
)

// fkEntities names the entity a foreign key points at.
var fkEntities = map[string]string{
	"zones_created_by_fkey":    "user",
	"sensors_zone_id_fkey":     "zone",
	"actions_zone_id_fkey":     "zone",
	"actions_created_by_fkey":  "user",
	"actions_assigned_to_fkey": "user",
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapError translates driver errors into domain errors. Context errors pass
// through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			entity, ok := fkEntities[pgErr.ConstraintName]
			if !ok {
				entity = "reference"
			}
			return domain.NotFound(entity, keyFromDetail(pgErr.Detail))
		case pgErrCheckViolation:
			return domain.Invalid(pgErr.ConstraintName, "violates check constraint")
		case pgErrSerialization, pgErrDeadlock, pgErrTooManyConnections,
			pgErrAdminShutdown, pgErrCrashShutdown, pgErrCannotConnectNow:
			return unavailable(err)
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return unavailable(err)
		}
		return err
	}
	if pgconn.Timeout(err) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return unavailable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return unavailable(err)
	}
	return err
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// keyFromDetail extracts "u1" from `Key (created_by)=(u1) is not present ...`.
func keyFromDetail(detail string) string {
	i := strings.Index(detail, ")=(")
	if i < 0 {
		return ""
	}
	rest := detail[i+3:]
	j := strings.IndexByte(rest, ')')
	if j < 0 {
		return ""
	}
	return rest[:j]
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
