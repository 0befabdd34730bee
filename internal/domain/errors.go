package domain

import "errors"

// Error categories. Service packages wrap their sentinel errors in one of
// these so transport layers can map them without knowing every sentinel.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)
