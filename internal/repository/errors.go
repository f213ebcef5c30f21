package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/alexdfirestone/national-parks/internal/models"
)

// Postgres SQLSTATE codes inspected by the repositories.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if pgCode(err) == pgUniqueViolation {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}

func isForeignKeyError(err error) bool {
	if err == nil {
		return false
	}
	if pgCode(err) == pgForeignKeyViolation {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}

// classify turns a driver error into an AppError.
func classify(resource string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case isUniqueConstraintError(err):
		return models.NewConflictError(resource+" already exists", err)
	case isForeignKeyError(err):
		return &models.AppError{Code: models.CodeValidation, Message: "referenced row not found", Err: err}
	case pgCode(err) == pgCheckViolation:
		return &models.AppError{Code: models.CodeValidation, Message: "invalid " + strings.ToLower(resource), Err: err}
	default:
		return models.NewInternalError(err)
	}
}

func notFoundOr(resource string, id any, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return classify(resource, err)
}
