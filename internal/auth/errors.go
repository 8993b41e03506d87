package auth

import "errors"

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnauthorized is returned when a request carries no usable credentials.
	ErrUnauthorized = errors.New("auth: unauthorized")
)
