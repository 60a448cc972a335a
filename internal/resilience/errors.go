package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// DataSourceError reports that an upstream roster, response, or store call
// failed. It is always retryable.
type DataSourceError struct {
	Source string
	Op     string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// NewDataSourceError wraps err as a DataSourceError. A nil err returns nil.
func NewDataSourceError(source, op string, err error) error {
	if err == nil {
		return nil
	}
	var dse *DataSourceError
	if errors.As(err, &dse) {
		return err
	}
	return &DataSourceError{Source: source, Op: op, Err: err}
}

// NoDataError reports that a scope has no summary rows in any month.
type NoDataError struct {
	Scope string
	// Requested is the month the caller asked for, if any.
	Requested string
}

func (e *NoDataError) Error() string {
	if e.Requested != "" {
		return fmt.Sprintf("no data for %s (requested %s)", e.Scope, e.Requested)
	}
	return fmt.Sprintf("no data for %s", e.Scope)
}

// ResolutionError reports an incomplete region→area mapping.
type ResolutionError struct {
	Region  string
	Month   string
	Missing []string
	Reason  string
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolve region %q", e.Region)
	if e.Month != "" {
		msg += " for " + e.Month
	}
	msg += ": " + e.Reason
	if len(e.Missing) > 0 {
		msg += " (" + strings.Join(e.Missing, ", ") + ")"
	}
	return msg
}

// ValidationError reports a malformed input value. Score-level validation
// errors are discarded by the calculator rather than returned.
type ValidationError struct {
	Field string
	Value any
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Msg)
}

// Error kinds, as reported by Kind.
const (
	KindDataSource = "data_source"
	KindNoData     = "no_data"
	KindResolution = "resolution"
	KindValidation = "validation"
	KindInternal   = "internal"
)

// Kind classifies err into the taxonomy above.
func Kind(err error) string {
	var (
		dse *DataSourceError
		nde *NoDataError
		re  *ResolutionError
		ve  *ValidationError
	)
	switch {
	case errors.As(err, &nde):
		return KindNoData
	case errors.As(err, &re):
		return KindResolution
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &dse):
		return KindDataSource
	default:
		return KindInternal
	}
}

// IsFatal reports whether err is a logical error that must never be retried.
func IsFatal(err error) bool {
	switch Kind(err) {
	case KindNoData, KindResolution, KindValidation:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is worth retrying: a DataSourceError
// (unless it wraps a fatal error or a cancellation), a network timeout, or
// a connection-level failure.
func IsTransient(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var dse *DataSourceError
	if errors.As(err, &dse) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"i/o timeout",
		"server closed idle connection",
		"too many connections",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
