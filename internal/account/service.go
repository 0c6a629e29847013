package account

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/corebank/corebank/internal/lock"
	"github.com/corebank/corebank/internal/shared"
	"github.com/corebank/corebank/internal/users"
)

// UserDirectory resolves account holders.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (users.User, error)
}

// Service orchestrates the account lifecycle.
type Service struct {
	repo    Repository
	userDir UserDirectory
	locks   *lock.Coordinator
	audit   *shared.AuditLogger
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo Repository, userDir UserDirectory, locks *lock.Coordinator, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		userDir: userDir,
		locks:   locks,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a new ACTIVE account for the user with the given opening
// balance. Number allocation is serialized globally inside the transaction;
// no per-account lock is needed since nobody else can reference the account
// before it exists.
func (s *Service) Create(ctx context.Context, userID, initialBalance int64) (Account, error) {
	user, err := s.userDir.FindByID(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	count, err := s.repo.CountForUser(ctx, user.ID)
	if err != nil {
		return Account{}, err
	}
	if count >= MaxAccountsPerUser {
		return Account{}, ErrLimitExceeded
	}

	var created Account
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx)
		if err != nil {
			return err
		}
		created, err = tx.Insert(ctx, Account{
			UserID:   user.ID,
			Number:   number,
			Status:   StatusActive,
			Balance:  initialBalance,
			OpenedAt: s.now(),
		})
		return err
	})
	if err != nil {
		return Account{}, err
	}

	s.recordAudit(ctx, user.ID, "account.create", created)
	return created, nil
}

// Close transitions the account to CLOSED. It takes the same per-account lock
// as the balance engine, so a close can never interleave with a use or cancel
// on the account, and re-validates every precondition under the lock.
func (s *Service) Close(ctx context.Context, userID int64, accountNumber string) (Account, error) {
	user, err := s.userDir.FindByID(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	acc, err := s.repo.FindByNumber(ctx, accountNumber)
	if err != nil {
		return Account{}, err
	}
	if err := validateClose(user.ID, acc); err != nil {
		return Account{}, err
	}

	held, err := s.locks.Acquire(ctx, shared.AccountLockKey(accountNumber))
	if err != nil {
		return Account{}, err
	}
	defer func() {
		if err := held.Release(ctx); err != nil {
			s.logger.Warn("release account lock", slog.String("account", accountNumber), slog.Any("error", err))
		}
	}()

	var closed Account
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.FindByNumberForUpdate(ctx, accountNumber)
		if err != nil {
			return err
		}
		if err := validateClose(user.ID, current); err != nil {
			return err
		}
		closed, err = tx.Close(ctx, current.ID, s.now())
		return err
	})
	if err != nil {
		return Account{}, err
	}

	s.recordAudit(ctx, user.ID, "account.close", closed)
	return closed, nil
}

// ListForUser returns every account the user holds.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]Account, error) {
	user, err := s.userDir.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListForUser(ctx, user.ID)
}

func validateClose(userID int64, acc Account) error {
	if acc.UserID != userID {
		return ErrOwnerMismatch
	}
	if acc.Status == StatusClosed {
		return ErrAlreadyClosed
	}
	if acc.Balance > 0 {
		return ErrHasBalance
	}
	return nil
}

// recordAudit is best effort; lifecycle changes must not fail on audit errors.
func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, acc Account) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: acc.Number,
		Meta:     map[string]any{"balance": strconv.FormatInt(acc.Balance, 10)},
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
