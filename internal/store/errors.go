// internal/store/errors.go
package store

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies an infrastructure fault from the store into a closed
// enumeration, so callers dispatch on the kind rather than on any
// particular driver's error hierarchy.
type Kind int

const (
	KindUnclassified Kind = iota
	KindTimeout
	KindConnection
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindSerialization:
		return "serialization"
	default:
		return "unclassified"
	}
}

// ErrCodeTaken reports that a join code is already held by an open match.
// Callers regenerate the code and retry.
var ErrCodeTaken = errors.New("join code already in use by an open match")

// Postgres SQLSTATEs relevant to the join protocol.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateUniqueViolation      = "23505"
)

// Classify inspects an error from the persistence layer and returns its
// infrastructure kind. Serialization conflicts are retryable; the rest
// are surfaced to the caller as-is.
func Classify(err error) Kind {
	if err == nil {
		return KindUnclassified
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateSerializationFailure, sqlstateDeadlockDetected:
			return KindSerialization
		}
		return KindUnclassified
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	if errors.Is(err, context.Canceled) {
		return KindConnection
	}
	return KindUnclassified
}

// isUniqueViolation reports whether err is a unique-index violation, which
// the join protocol maps to a lost slot race rather than a fault.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation
}
