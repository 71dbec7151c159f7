package verlog

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

var (
	// ErrNotFound is returned by Store.Find when no row matches the key.
	ErrNotFound = errors.New("verlog: row not found")

	// ErrDuplicateKey is returned by stores without a SQL backend when an insert
	// collides with an existing primary key.
	ErrDuplicateKey = errors.New("verlog: duplicate primary key")
)

// ConfigurationError reports an invalid change logging setup. It is raised while
// the model is built and aborts the build.
type ConfigurationError struct {
	Table  string
	Column string
	Reason string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Column != "" && e.Table != "":
		return fmt.Sprintf("verlog: column %q on table %q: %s", e.Column, e.Table, e.Reason)
	case e.Table != "":
		return fmt.Sprintf("verlog: table %q: %s", e.Table, e.Reason)
	default:
		return "verlog: " + e.Reason
	}
}

// IsConfigurationError returns true if err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsVersionConflict reports whether err is a primary key collision, which is how a
// concurrent append of the same version for the same origin row surfaces.
func IsVersionConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
