package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested paper, verdict or run does not
// exist.
var ErrNotFound = errors.New("not found")

// lookupErr maps sql.ErrNoRows to ErrNotFound and wraps anything else with
// the operation name.
func lookupErr(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
