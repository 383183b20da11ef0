package store

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the stores translate.
const (
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isForeignKeyViolation(err error) bool {
	return pqCode(err) == codeForeignKeyViolation
}

func isInvalidText(err error) bool {
	return pqCode(err) == codeInvalidText
}
