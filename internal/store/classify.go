package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/joao-fontenele/bookstore-api/internal/apierr"
)

// Classify turns connectivity failures from either store into
// DependencyUnavailable. Errors that already carry a kind are kept as is.
func Classify(err error) error {
	if err == nil || apierr.KindOf(err) != apierr.KindUnknown {
		return err
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) {
		return apierr.DependencyUnavailable(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apierr.DependencyUnavailable(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "08" {
		return apierr.DependencyUnavailable(err)
	}

	return err
}

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
	outOfRange      = "22003"
)

// IsUniqueViolation reports whether err is a postgres unique constraint
// violation, optionally on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	return hasCode(err, uniqueViolation, constraint)
}

// IsCheckViolation reports whether err is a postgres check constraint
// violation, optionally on the named constraint.
func IsCheckViolation(err error, constraint string) bool {
	return hasCode(err, checkViolation, constraint)
}

// IsOutOfRange reports whether a value did not fit its column type.
func IsOutOfRange(err error) bool {
	return hasCode(err, outOfRange, "")
}

func hasCode(err error, code pq.ErrorCode, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != code {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
