package records

import "errors"

var (
	ErrNotFound     = errors.New("records: not found")
	ErrConflict     = errors.New("records: conflict")
	ErrInvalidInput = errors.New("records: invalid input")
	ErrForbidden    = errors.New("records: forbidden")
)
