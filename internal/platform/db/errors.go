package db

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medappt/scheduler/internal/platform/apperr"
)

// PostgreSQL SQLSTATE codes the engine reacts to.
const (
	CodeUniqueViolation      = "23505"
	CodeExclusionViolation   = "23P01"
	CodeForeignKeyViolation  = "23503"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeTooManyConnections   = "53300"
	CodeAdminShutdown        = "57P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// ConstraintName returns the violated constraint, if the error carries one.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func IsUniqueViolation(err error) bool { return pgCode(err) == CodeUniqueViolation }

func IsExclusionViolation(err error) bool { return pgCode(err) == CodeExclusionViolation }

func IsForeignKeyViolation(err error) bool { return pgCode(err) == CodeForeignKeyViolation }

func IsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// IsTransient reports failures where the statement outcome is unknown or the
// server refused work temporarily.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	code := pgCode(err)
	switch code {
	case CodeSerializationFailure, CodeDeadlockDetected, CodeTooManyConnections, CodeAdminShutdown:
		return true
	}
	// Class 08: connection exception.
	return strings.HasPrefix(code, "08")
}

// Classify converts a storage error into the engine taxonomy. Constraint
// violations carry domain meaning and must be mapped by the caller first.
func Classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) {
		return apperr.Transient(err, "%s: storage unavailable", op)
	}
	return apperr.Internal(err, "%s", op)
}
