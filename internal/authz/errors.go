package authz

import "errors"

var (
	ErrNotFound          = errors.New("authz: not found")
	ErrConflict          = errors.New("authz: resource conflict")
	ErrInvalidInput      = errors.New("authz: invalid input")
	ErrInvalidTransition = errors.New("authz: invalid state transition")
	ErrForbidden         = errors.New("authz: forbidden")
	ErrConfiguration     = errors.New("authz: configuration error")
)
