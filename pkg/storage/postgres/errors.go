package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL error codes the services react to.
const (
	CodeUniqueViolation   = "23505"
	CodeUndefinedColumn   = "42703"
	CodeUndefinedFunction = "42883"
	CodeRaiseException    = "P0001"
)

func hasCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}

// IsUniqueViolation reports a unique constraint violation. Callers treat it
// as "already exists".
func IsUniqueViolation(err error) bool {
	return hasCode(err, CodeUniqueViolation)
}

// IsUndefinedColumn reports a reference to a column the schema lacks.
func IsUndefinedColumn(err error) bool {
	return hasCode(err, CodeUndefinedColumn)
}

// IsUndefinedFunction reports a call to a procedure that is not installed.
func IsUndefinedFunction(err error) bool {
	return hasCode(err, CodeUndefinedFunction)
}

// RaisedMessage returns the message of a RAISE EXCEPTION from a procedure.
func RaisedMessage(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == CodeRaiseException {
		return pqErr.Message, true
	}
	return "", false
}
