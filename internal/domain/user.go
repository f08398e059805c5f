package domain

import "time"

// User represents a local account created or refreshed from identity claims.
// The email claim is the username, taken verbatim from the identity provider.
type User struct {
	ID          int64
	Email       string
	FirstName   string
	LastName    string
	Phone       string
	IsStaff     bool
	IsSuperuser bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
