package transaction

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corebank/corebank/internal/account"
	"github.com/corebank/corebank/internal/lock"
	"github.com/corebank/corebank/internal/observability"
	"github.com/corebank/corebank/internal/shared"
	"github.com/corebank/corebank/internal/users"
)

// AccountStore resolves accounts outside the unit of work.
type AccountStore interface {
	FindByNumber(ctx context.Context, number string) (account.Account, error)
}

// UserDirectory resolves requesting users.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (users.User, error)
}

// Service is the balance engine. Each use or cancel runs as
// validate → lock → re-validate → mutate → append → release; any failure
// after validation can still be recorded through the failed-entry appends.
type Service struct {
	repo     Repository
	accounts AccountStore
	userDir  UserDirectory
	locks    *lock.Coordinator
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	newID    func() string
}

// NewService constructs the balance engine.
func NewService(repo Repository, accounts AccountStore, userDir UserDirectory, locks *lock.Coordinator, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		userDir:  userDir,
		locks:    locks,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		newID:    NewTransactionID,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// NewTransactionID generates a collision-resistant 32-character id.
func NewTransactionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Use debits the account. Preconditions are checked twice: once before
// acquiring the per-account lock for a fast fail, and again on the row locked
// inside the unit of work, which is what makes the result immune to
// interleavings since the initial load.
func (s *Service) Use(ctx context.Context, userID int64, accountNumber string, amount int64) (Entry, error) {
	user, err := s.userDir.FindByID(ctx, userID)
	if err != nil {
		return Entry{}, err
	}
	acc, err := s.accounts.FindByNumber(ctx, accountNumber)
	if err != nil {
		return Entry{}, err
	}
	if err := validateUse(user.ID, acc, amount); err != nil {
		return Entry{}, err
	}

	held, err := s.acquire(ctx, accountNumber)
	if err != nil {
		return Entry{}, err
	}
	defer s.release(ctx, held)

	var entry Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.AccountForUpdate(ctx, accountNumber)
		if err != nil {
			return err
		}
		if err := validateUse(user.ID, current, amount); err != nil {
			return err
		}
		newBalance := current.Balance - amount
		now := s.now()
		if err := tx.UpdateBalance(ctx, current.ID, newBalance, now); err != nil {
			return err
		}
		entry, err = tx.Append(ctx, Entry{
			TransactionID:   s.newID(),
			Type:            TypeUse,
			Result:          ResultSuccess,
			AccountID:       current.ID,
			AccountNumber:   current.Number,
			Amount:          amount,
			BalanceSnapshot: newBalance,
			TransactedAt:    now,
		})
		return err
	})
	if err != nil {
		return Entry{}, err
	}

	s.metrics.ObserveLedgerEntry(string(TypeUse), string(ResultSuccess))
	return entry, nil
}

// Cancel reverses a prior use in full. The original entry must be a
// successful USE on the given account with the exact amount, younger than one
// year, and not already cancelled; the duplicate check runs under the lock so
// racing cancels resolve to a single winner.
func (s *Service) Cancel(ctx context.Context, transactionID, accountNumber string, amount int64) (Entry, error) {
	original, err := s.repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return Entry{}, err
	}
	acc, err := s.accounts.FindByNumber(ctx, accountNumber)
	if err != nil {
		return Entry{}, err
	}
	if err := s.validateCancel(original, acc, amount); err != nil {
		return Entry{}, err
	}

	held, err := s.acquire(ctx, accountNumber)
	if err != nil {
		return Entry{}, err
	}
	defer s.release(ctx, held)

	var entry Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.AccountForUpdate(ctx, accountNumber)
		if err != nil {
			return err
		}
		if err := s.validateCancel(original, current, amount); err != nil {
			return err
		}
		cancelled, err := tx.HasSuccessfulCancel(ctx, original.TransactionID)
		if err != nil {
			return err
		}
		if cancelled {
			return ErrAlreadyCancelled
		}
		newBalance := current.Balance + amount
		now := s.now()
		if err := tx.UpdateBalance(ctx, current.ID, newBalance, now); err != nil {
			return err
		}
		entry, err = tx.Append(ctx, Entry{
			TransactionID:         s.newID(),
			Type:                  TypeCancel,
			Result:                ResultSuccess,
			AccountID:             current.ID,
			AccountNumber:         current.Number,
			Amount:                amount,
			BalanceSnapshot:       newBalance,
			OriginalTransactionID: original.TransactionID,
			TransactedAt:          now,
		})
		return err
	})
	if err != nil {
		return Entry{}, err
	}

	s.metrics.ObserveLedgerEntry(string(TypeCancel), string(ResultSuccess))
	return entry, nil
}

// Query returns any ledger entry by transaction id, failed ones included.
func (s *Service) Query(ctx context.Context, transactionID string) (Entry, error) {
	return s.repo.FindByTransactionID(ctx, transactionID)
}

// ListForAccount returns the paginated ledger history of an account.
func (s *Service) ListForAccount(ctx context.Context, accountNumber string, page, perPage int) ([]Entry, shared.Pagination, error) {
	acc, err := s.accounts.FindByNumber(ctx, accountNumber)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, 0)
	entries, total, err := s.repo.ListForAccount(ctx, acc.ID, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(page, perPage, total), nil
}

// RecordFailedUse appends a FAILED/USE entry with the account's balance at
// this moment. It runs outside the per-account lock: the entry is audit-only
// and never derives a balance.
func (s *Service) RecordFailedUse(ctx context.Context, accountNumber string, amount int64) (Entry, error) {
	return s.recordFailed(ctx, TypeUse, accountNumber, amount)
}

// RecordFailedCancel appends a FAILED/CANCEL entry, symmetric to RecordFailedUse.
func (s *Service) RecordFailedCancel(ctx context.Context, accountNumber string, amount int64) (Entry, error) {
	return s.recordFailed(ctx, TypeCancel, accountNumber, amount)
}

func (s *Service) recordFailed(ctx context.Context, entryType Type, accountNumber string, amount int64) (Entry, error) {
	acc, err := s.accounts.FindByNumber(ctx, accountNumber)
	if err != nil {
		return Entry{}, err
	}
	entry, err := s.repo.Append(ctx, Entry{
		TransactionID:   s.newID(),
		Type:            entryType,
		Result:          ResultFailed,
		AccountID:       acc.ID,
		AccountNumber:   acc.Number,
		Amount:          amount,
		BalanceSnapshot: acc.Balance,
		TransactedAt:    s.now(),
	})
	if err != nil {
		return Entry{}, err
	}
	s.metrics.ObserveLedgerEntry(string(entryType), string(ResultFailed))
	return entry, nil
}

func (s *Service) acquire(ctx context.Context, accountNumber string) (*lock.Lock, error) {
	held, err := s.locks.Acquire(ctx, shared.AccountLockKey(accountNumber))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			s.metrics.ObserveLockTimeout()
		}
		return nil, err
	}
	return held, nil
}

func (s *Service) release(ctx context.Context, held *lock.Lock) {
	if err := held.Release(ctx); err != nil {
		s.logger.Warn("release account lock", slog.String("key", held.Key()), slog.Any("error", err))
	}
}

func validateUse(userID int64, acc account.Account, amount int64) error {
	if acc.UserID != userID {
		return account.ErrOwnerMismatch
	}
	if acc.Status != account.StatusActive {
		return account.ErrAlreadyClosed
	}
	if amount > acc.Balance {
		return ErrBalanceExceeded
	}
	return nil
}

func (s *Service) validateCancel(original Entry, acc account.Account, amount int64) error {
	if original.AccountID != acc.ID {
		return ErrAccountMismatch
	}
	if acc.Status != account.StatusActive {
		return account.ErrAlreadyClosed
	}
	if original.Type != TypeUse || original.Result != ResultSuccess {
		return ErrNotCancellable
	}
	if original.Amount != amount {
		return ErrAmountMismatch
	}
	// Strict window: an entry exactly one year old is already expired.
	if !original.TransactedAt.After(s.now().AddDate(-1, 0, 0)) {
		return ErrCancellationExpired
	}
	return nil
}
