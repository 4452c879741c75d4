package postgres

import (
	"errors"

	"github.com/lib/pq"
)

const pqUndefinedTable = "42P01"

// IsUndefinedTable reports whether err means the table has not been created yet
func IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == pqUndefinedTable
}
