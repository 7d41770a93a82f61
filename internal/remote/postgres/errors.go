package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// mapError converts a database failure into a gRPC status error.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return status.Errorf(classify(err), "%s: %v", op, err)
}

func classify(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return codes.Unavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501", strings.HasPrefix(pgErr.Code, "28"):
			return codes.PermissionDenied
		case pgErr.Code == "42P01", pgErr.Code == "42703", pgErr.Code == "55000":
			// Missing table, column or prerequisite state: the schema is
			// not ready yet.
			return codes.FailedPrecondition
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "57P01",
			pgErr.Code == "57P03", pgErr.Code == "53300":
			return codes.Unavailable
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return codes.Aborted
		}
		return codes.Internal
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return codes.Unavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return codes.Unavailable
	}
	return codes.Unknown
}
