package database

import (
	"errors"

	"github.com/uptrace/bun/driver/pgdriver"
)

// Postgres error codes we branch on.
const (
	pgUniqueViolation = "23505"
)

// IsUniqueViolation reports whether err is a unique-constraint violation from
// the Postgres driver.
func IsUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Field('C') == pgUniqueViolation
}
