package persistence

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	mysqlDuplicateEntry = 1062
	pqUniqueViolation   = "23505"
)

// ErrUniqueViolation is a unique constraint violation reported by any of the
// supported drivers. Detail holds the constraint or column description the
// driver reported, it is what callers inspect to find the offending field.
type ErrUniqueViolation struct {
	Detail string
	Cause  error
}

func (e *ErrUniqueViolation) Error() string {
	return "unique constraint violated: " + e.Detail
}

func (e *ErrUniqueViolation) Unwrap() error {
	return e.Cause
}

// Involves reports whether the violated constraint mentions the field.
func (e *ErrUniqueViolation) Involves(field string) bool {
	return strings.Contains(strings.ToLower(e.Detail), strings.ToLower(field))
}

// TranslateError converts driver specific unique violations into
// *ErrUniqueViolation and returns every other error unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return &ErrUniqueViolation{Detail: mysqlErr.Message, Cause: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		detail := pqErr.Constraint
		if detail == "" {
			detail = pqErr.Detail
		}
		return &ErrUniqueViolation{Detail: detail, Cause: err}
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return &ErrUniqueViolation{Detail: sqliteErr.Error(), Cause: err}
	}

	return err
}
