package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/gps-cli/internal/resilience"
)

// IsTransient reports whether a store error may succeed on retry: lost
// connections, lock contention, serialization failures, and server
// shutdowns. Constraint and syntax errors are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return true
		case pgErr.Code == "40001", // serialization_failure
			pgErr.Code == "40P01", // deadlock_detected
			pgErr.Code == "53300", // too_many_connections
			pgErr.Code == "55P03", // lock_not_available
			pgErr.Code == "57P01", // admin_shutdown
			pgErr.Code == "57P02", // crash_shutdown
			pgErr.Code == "57P03": // cannot_connect_now
			return true
		}
		return false
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	return resilience.IsTransient(err)
}

// Classify marks transient failures of op as a DataSourceError so retry
// policies pick them up. Other errors pass through unchanged.
func Classify(op string, err error) error {
	if err == nil || !IsTransient(err) {
		return err
	}
	return resilience.NewDataSourceError("store", op, err)
}
