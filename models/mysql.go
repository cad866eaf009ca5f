package models

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// IsDuplicateKeyErr detects a MySQL unique-constraint violation (1062),
// the conflict signal the idempotent upserts rely on under concurrent
// writers.
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
