package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corebank/corebank/internal/platform/db"
)

// Repository describes the persistence surface the registry needs.
type Repository interface {
	FindByNumber(ctx context.Context, number string) (Account, error)
	ListForUser(ctx context.Context, userID int64) ([]Account, error)
	CountForUser(ctx context.Context, userID int64) (int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transaction-scoped view used inside a unit of work.
type TxRepository interface {
	NextNumber(ctx context.Context) (string, error)
	Insert(ctx context.Context, acc Account) (Account, error)
	FindByNumberForUpdate(ctx context.Context, number string) (Account, error)
	Close(ctx context.Context, id int64, at time.Time) (Account, error)
}

// PgRepository persists accounts in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PgRepository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const accountColumns = `id, user_id, account_number, status, balance, opened_at, closed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.UserID, &a.Number, &a.Status, &a.Balance, &a.OpenedAt, &a.ClosedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// FindByNumber fetches an account by its number.
func (r *PgRepository) FindByNumber(ctx context.Context, number string) (Account, error) {
	if r == nil || r.pool == nil {
		return Account{}, fmt.Errorf("account: repository not initialised")
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, number))
}

// ListForUser returns every account the user holds, oldest first.
func (r *PgRepository) ListForUser(ctx context.Context, userID int64) ([]Account, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("account: repository not initialised")
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CountForUser counts accounts currently held by the user.
func (r *PgRepository) CountForUser(ctx context.Context, userID int64) (int, error) {
	if r == nil || r.pool == nil {
		return 0, fmt.Errorf("account: repository not initialised")
	}
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("account: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

// numberAllocationLock serializes account-number assignment across the whole
// system; pg_advisory_xact_lock releases with the transaction.
const numberAllocationLock = int64(7411001)

// NextNumber computes highest-assigned + 1, starting from the base value.
func (r *pgTxRepository) NextNumber(ctx context.Context) (string, error) {
	if _, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, numberAllocationLock); err != nil {
		return "", fmt.Errorf("account: number allocation lock: %w", err)
	}
	var highest *string
	if err := r.tx.QueryRow(ctx, `SELECT MAX(account_number) FROM accounts`).Scan(&highest); err != nil {
		return "", err
	}
	if highest == nil {
		return BaseNumber, nil
	}
	n, err := strconv.ParseInt(*highest, 10, 64)
	if err != nil {
		return "", fmt.Errorf("account: malformed account number %q: %w", *highest, err)
	}
	return strconv.FormatInt(n+1, 10), nil
}

// Insert persists a new account row.
func (r *pgTxRepository) Insert(ctx context.Context, acc Account) (Account, error) {
	const query = `
		INSERT INTO accounts (user_id, account_number, status, balance, opened_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, created_at, updated_at`
	now := time.Now()
	if err := r.tx.QueryRow(ctx, query, acc.UserID, acc.Number, acc.Status, acc.Balance, acc.OpenedAt, now).
		Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, fmt.Errorf("account: number %s already allocated: %w", acc.Number, err)
		}
		return Account{}, err
	}
	return acc, nil
}

// FindByNumberForUpdate locks the account row for the remainder of the transaction.
func (r *pgTxRepository) FindByNumberForUpdate(ctx context.Context, number string) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1 FOR UPDATE`
	return scanAccount(r.tx.QueryRow(ctx, query, number))
}

// Close marks the account CLOSED with the closure timestamp.
func (r *pgTxRepository) Close(ctx context.Context, id int64, at time.Time) (Account, error) {
	const query = `
		UPDATE accounts SET status = $2, closed_at = $3, updated_at = $3
		WHERE id = $1
		RETURNING ` + accountColumns
	return scanAccount(r.tx.QueryRow(ctx, query, id, StatusClosed, at))
}
