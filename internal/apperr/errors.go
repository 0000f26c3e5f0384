package apperr

import "errors"

// Sentinel errors shared across the import pipeline and the lifecycle service.
// Callers wrap them with fmt.Errorf("...: %w", ...) and test with errors.Is.
var (
	ErrInput         = errors.New("invalid input")
	ErrExtraction    = errors.New("text extraction failed")
	ErrNormalization = errors.New("schedule normalization failed")
	ErrVersioning    = errors.New("schedule versioning failed")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("event is in a terminal or incompatible state")
	ErrValidation    = errors.New("validation failed")
)
