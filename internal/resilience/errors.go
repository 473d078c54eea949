package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes that indicate a statement is safe to rerun.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgCannotConnectNow     = "57P03"
	pgTooManyConnections   = "53300"
	pgConnectionClass      = "08" // connection exceptions
)

// IsTransient returns true if the error is a retryable database failure:
// a deadlock or serialization failure, a connection-level Postgres error,
// or a network timeout underneath the driver. Constraint violations and
// other data errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected,
			pgCannotConnectNow, pgTooManyConnections:
			return true
		}
		return strings.HasPrefix(pgErr.Code, pgConnectionClass)
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

	// pgx wraps pool-level failures without a PgError.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"unexpected eof",
		"conn closed",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
