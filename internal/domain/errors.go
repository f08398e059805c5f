package domain

import "errors"

var (
	// ErrProviderNotFound signals a tenant key absent from its registry
	// partition. Callers recover by falling through to global settings.
	ErrProviderNotFound = errors.New("fedauth: provider not found")
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("fedauth: invalid request")
	// ErrCodeInvalid indicates an expired or never-issued exchange code.
	ErrCodeInvalid = errors.New("fedauth: code invalid or expired")
	// ErrUserNotFound signals a missing local user record.
	ErrUserNotFound = errors.New("fedauth: user not found")
)
