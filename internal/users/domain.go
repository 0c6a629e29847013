// Package users holds the account-holder registry. Users exist independently
// of their accounts and are never deleted.
package users

import (
	"errors"

	"github.com/corebank/corebank/internal/shared"
)

// User represents an account holder.
type User struct {
	shared.RecordHeader
	Name string
}

// ErrNotFound indicates the referenced user does not exist.
var ErrNotFound = errors.New("users: user not found")
