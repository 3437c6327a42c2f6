package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts the key expression from "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \((.+?)\)=\(`)

// reLowerCall unwraps expression indexes such as lower(email).
var reLowerCall = regexp.MustCompile(`^(?:lower|upper|trim)\((\w+)\)$`)

// MapDBError maps database errors to AppError instances:
//   - context deadline/cancel → Timeout/Canceled
//   - pgx.ErrNoRows → NotFound
//   - unique violation → Conflict (with Field when it can be derived)
//   - check / not-null violation → Validation
//
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "Request timed out. Please try again.", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "Request was canceled.", Cause: err}
	case errors.Is(err, pgx.ErrNoRows):
		return &AppError{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "This value already exists. Please choose a different one.",
			Field:   uniqueField(pgErr),
			Cause:   pgErr,
		}
	case pgerrcode.CheckViolation:
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "Invalid data. Please check your input.",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	case pgerrcode.NotNullViolation:
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "Required field is missing. Please check your input.",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	default:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "A database error occurred. Please try again.",
			Cause:   pgErr,
		}
	}
}

// uniqueField prefers column metadata, then the Detail key, then the
// "<table>_<field>_key" constraint naming convention.
func uniqueField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		key := strings.TrimSpace(m[1])
		if lm := reLowerCall.FindStringSubmatch(key); len(lm) == 2 {
			return lm[1]
		}
		if !strings.ContainsAny(key, ",() ") {
			return key
		}
		return ""
	}
	name := strings.TrimSuffix(pgErr.ConstraintName, "_key")
	if name == pgErr.ConstraintName || pgErr.TableName == "" {
		return ""
	}
	field := strings.TrimPrefix(name, pgErr.TableName+"_")
	if field == name || strings.Contains(field, "_") {
		return ""
	}
	return field
}
