package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means the deployment is missing a required setting.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnauthorized means the caller's credential did not match the secret.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidFormat means the body is not JSON or matches no accepted shape.
	ErrInvalidFormat = errors.New("invalid payload format")
	// ErrInvalidTable means the resolved table is missing or not allow-listed.
	ErrInvalidTable = errors.New("invalid table")
	// ErrPersistence means the event upsert failed.
	ErrPersistence = errors.New("persistence error")
)

// TableError names the table that failed allow-list validation.
type TableError struct {
	Table string
}

func (e *TableError) Error() string {
	if e.Table == "" {
		return "table not identified"
	}
	return fmt.Sprintf("table %q is not allowed", e.Table)
}

func (e *TableError) Unwrap() error {
	return ErrInvalidTable
}
