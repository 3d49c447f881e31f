package docstore

import "errors"

var (
	ErrNotFound        = errors.New("document not found")
	ErrConflict        = errors.New("document conflict")
	ErrIO              = errors.New("document storage failure")
	ErrInvalidDocument = errors.New("invalid document")
)
