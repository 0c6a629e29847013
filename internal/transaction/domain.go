// Package transaction implements the balance engine and the append-only
// transaction ledger. Every use or cancel attempt leaves exactly one ledger
// entry, successful or failed; entries are never modified or deleted.
package transaction

import (
	"errors"
	"time"

	"github.com/corebank/corebank/internal/shared"
)

// Type enumerates the ledger entry kinds.
type Type string

const (
	TypeUse    Type = "USE"
	TypeCancel Type = "CANCEL"
)

// Result enumerates the outcome recorded on a ledger entry.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailed  Result = "FAILED"
)

// Entry is one immutable ledger record. BalanceSnapshot holds the account
// balance immediately after the mutation, or the unchanged balance when the
// entry records a failure that never reached mutation.
type Entry struct {
	shared.RecordHeader
	TransactionID   string
	Type            Type
	Result          Result
	AccountID       int64
	AccountNumber   string
	Amount          int64
	BalanceSnapshot int64
	// OriginalTransactionID links a CANCEL entry to the USE it reverses.
	OriginalTransactionID string
	TransactedAt          time.Time
}

// ErrNotFound indicates no ledger entry carries the requested transaction id.
var ErrNotFound = errors.New("transaction: transaction not found")

// ErrBalanceExceeded indicates a use amount greater than the current balance.
var ErrBalanceExceeded = errors.New("transaction: amount exceeds account balance")

// ErrAccountMismatch indicates the original entry belongs to a different account.
var ErrAccountMismatch = errors.New("transaction: transaction does not belong to this account")

// ErrAmountMismatch indicates a cancel amount differing from the original; partial cancellation is not supported.
var ErrAmountMismatch = errors.New("transaction: cancel amount differs from original amount")

// ErrCancellationExpired indicates the original entry is a year old or older.
var ErrCancellationExpired = errors.New("transaction: cancellation window expired")

// ErrNotCancellable indicates the referenced entry is not a successful use.
var ErrNotCancellable = errors.New("transaction: only successful use transactions can be cancelled")

// ErrAlreadyCancelled indicates the referenced entry was cancelled earlier.
var ErrAlreadyCancelled = errors.New("transaction: transaction already cancelled")
