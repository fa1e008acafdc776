// Package repository defines the persistence contract used by the booking
// engine together with its MySQL and in-memory implementations.  The
// sentinel values below let higher layers tell failure scenarios apart
// without depending on a particular driver.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.  Handlers
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by compare-and-swap updates when the row's
// version no longer matches the version the caller read.  Another request
// modified the row in between; the caller should reload before retrying.
var ErrVersionConflict = errors.New("version conflict")

// ErrDuplicate is returned when an insert collides with an existing key.
var ErrDuplicate = errors.New("duplicate key")

// MySQL server error numbers the repositories care about.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// isDuplicate reports whether err is a MySQL duplicate-key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry
}

// IsTransient reports whether err is a MySQL error that is safe to retry
// after rolling back: a deadlock or a lock wait timeout.
func IsTransient(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == mysqlErrDeadlock || me.Number == mysqlErrLockWaitTimeout
}
