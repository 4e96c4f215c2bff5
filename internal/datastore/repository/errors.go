package repository

import (
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/tphakala/birdhomie/internal/errors"
)

var (
	// ErrFileNotFound indicates the requested file does not exist.
	ErrFileNotFound = errors.NewStd("file not found")

	// ErrVisitNotFound indicates the requested visit does not exist.
	ErrVisitNotFound = errors.NewStd("visit not found")

	// ErrTaxonNotFound indicates no cached taxon matches.
	ErrTaxonNotFound = errors.NewStd("taxon not found")

	// ErrTaskRunNotFound indicates the requested task run does not exist.
	ErrTaskRunNotFound = errors.NewStd("task run not found")

	// ErrDetectionNotInVisit indicates a detection id that does not belong to the visit.
	ErrDetectionNotInVisit = errors.NewStd("detection not found or does not belong to visit")

	// ErrInvalidTransition indicates a file status change that is not allowed.
	ErrInvalidTransition = errors.NewStd("invalid file status transition")

	// ErrSelfMerge indicates an attempt to merge a file into itself.
	ErrSelfMerge = errors.NewStd("cannot merge a file into itself")

	// ErrDuplicate indicates a unique constraint violation, e.g. a second
	// file row with the same content hash.
	ErrDuplicate = errors.NewStd("duplicate key")
)

// mysqlDuplicateEntry is ER_DUP_ENTRY
const mysqlDuplicateEntry = 1062

// notFound maps gorm.ErrRecordNotFound to sentinel, other errors to a database error
func notFound(err, sentinel error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New(sentinel).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("operation", op).
			Build()
	}
	return dbError(err, op)
}

// dbError wraps a failed statement as a persistence failure
func dbError(err error, op string) error {
	if err == nil {
		return nil
	}
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return err
	}
	if isDuplicateKey(err) {
		return errors.New(fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)).
			Component("datastore").
			Category(errors.CategoryConflict).
			Context("operation", op).
			Build()
	}
	return errors.New(fmt.Errorf("%s: %w", op, err)).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

// invalid builds a validation error around a sentinel
func invalid(sentinel error, op string, kv ...any) error {
	b := errors.New(sentinel).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("operation", op)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			b.Context(k, kv[i+1])
		}
	}
	return b.Build()
}

// isDuplicateKey recognizes unique violations from both drivers
func isDuplicateKey(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
