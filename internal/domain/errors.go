package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLockHeld           = errors.New("lock already held")
	ErrInvalidOpportunity = errors.New("invalid opportunity")
	ErrInvalidObservation = errors.New("invalid price observation")
	ErrFeeDataUnavailable = errors.New("fee data unavailable")
	ErrMissingContract    = errors.New("execution contract address not configured")
	ErrUnsupportedVenue   = errors.New("unsupported venue")
	ErrInvalidConfig      = errors.New("invalid configuration")
)
