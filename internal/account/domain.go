// Package account implements the account registry: creation with serialized
// number allocation, closure, and per-user listings. Balance mutation lives in
// the transaction package; the registry only ever flips status and hands out
// projections.
package account

import (
	"errors"
	"time"

	"github.com/corebank/corebank/internal/shared"
)

// Status enumerates the account lifecycle. A closed account never reopens.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusClosed Status = "CLOSED"
)

// BaseNumber is the number assigned to the first account ever created.
const BaseNumber = "1000000000"

// MaxAccountsPerUser caps the number of accounts a single user may hold.
const MaxAccountsPerUser = 10

// Account is a balance-bearing resource owned by a user.
type Account struct {
	shared.RecordHeader
	UserID   int64
	Number   string
	Status   Status
	Balance  int64
	OpenedAt time.Time
	ClosedAt *time.Time
}

// ErrNotFound indicates no account carries the requested number.
var ErrNotFound = errors.New("account: account not found")

// ErrOwnerMismatch indicates the requesting user does not own the account.
var ErrOwnerMismatch = errors.New("account: user does not own this account")

// ErrAlreadyClosed indicates the account was closed earlier.
var ErrAlreadyClosed = errors.New("account: account already closed")

// ErrHasBalance indicates closure was attempted with a non-zero balance.
var ErrHasBalance = errors.New("account: account still carries a balance")

// ErrLimitExceeded indicates the user already holds the maximum number of accounts.
var ErrLimitExceeded = errors.New("account: account limit exceeded")
