// Package repository implements the data access layer for the application.
package repository

import (
	"errors"

	"devconnector/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// ErrVersionConflict is returned by versioned writes that lost a race with
// another writer. Callers re-read and retry.
var ErrVersionConflict = errors.New("version conflict")

// mapError converts store errors to AppErrors. resource and id describe the
// looked-up entity for not-found errors.
func mapError(err error, resource string, id any) error {
	if err == nil {
		return nil
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, ErrVersionConflict) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	// A write referencing a row deleted concurrently.
	if isForeignKeyViolation(err) {
		return models.NewNotFoundError(resource, id)
	}
	if isUniqueViolation(err) {
		return models.NewConflictError(resource+" already exists", err)
	}
	return models.NewStoreUnavailableError(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	return errors.Is(err, gorm.ErrForeignKeyViolated)
}
