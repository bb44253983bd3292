package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrDeleted      = errors.New("deleted")
	ErrInvalid      = errors.New("invalid")
	ErrEmptyText    = errors.New("empty text")
	ErrSync         = errors.New("sync failed")
	ErrAmbiguousRef = errors.New("ambiguous reference")
	ErrUnauthorized = errors.New("unauthorized")
)
