package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry  = 1062
)

// isUniqueConstraintError reports a duplicate key from any supported driver.
// SQLite only reports it in the message text.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	var myErr *mysql.MySQLError
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	case errors.As(err, &pgErr):
		return pgErr.Code == pgUniqueViolation
	case errors.As(err, &myErr):
		return myErr.Number == mysqlDuplicateEntry
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}

func uniqueViolation(field, message string) *apperrors.AppError {
	return apperrors.FieldError(field, message)
}

func notFound(resource string) *apperrors.AppError {
	return apperrors.NewNotFound(resource + " not found.")
}
