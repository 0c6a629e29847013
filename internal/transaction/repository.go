package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corebank/corebank/internal/account"
	"github.com/corebank/corebank/internal/platform/db"
)

// Repository describes the persistence surface the balance engine needs.
// The unit of work spans the accounts row and the ledger, so the
// transaction-scoped view exposes both.
type Repository interface {
	FindByTransactionID(ctx context.Context, transactionID string) (Entry, error)
	ListForAccount(ctx context.Context, accountID int64, limit, offset int) ([]Entry, int, error)
	Append(ctx context.Context, entry Entry) (Entry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transaction-scoped view used inside a unit of work.
type TxRepository interface {
	AccountForUpdate(ctx context.Context, number string) (account.Account, error)
	UpdateBalance(ctx context.Context, accountID, balance int64, at time.Time) error
	HasSuccessfulCancel(ctx context.Context, originalTransactionID string) (bool, error)
	Append(ctx context.Context, entry Entry) (Entry, error)
}

// PgRepository persists ledger entries in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PgRepository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const entryColumns = `t.id, t.transaction_id, t.type, t.result, t.account_id, a.account_number,
	t.amount, t.balance_snapshot, COALESCE(t.original_transaction_id, ''), t.transacted_at, t.created_at, t.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	if err := row.Scan(&e.ID, &e.TransactionID, &e.Type, &e.Result, &e.AccountID, &e.AccountNumber,
		&e.Amount, &e.BalanceSnapshot, &e.OriginalTransactionID, &e.TransactedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

// FindByTransactionID fetches a ledger entry by its caller-visible id.
func (r *PgRepository) FindByTransactionID(ctx context.Context, transactionID string) (Entry, error) {
	if r == nil || r.pool == nil {
		return Entry{}, fmt.Errorf("transaction: repository not initialised")
	}
	query := `SELECT ` + entryColumns + ` FROM transactions t JOIN accounts a ON a.id = t.account_id WHERE t.transaction_id = $1`
	return scanEntry(r.pool.QueryRow(ctx, query, transactionID))
}

// ListForAccount returns ledger entries for an account, newest first, with the
// total count for pagination.
func (r *PgRepository) ListForAccount(ctx context.Context, accountID int64, limit, offset int) ([]Entry, int, error) {
	if r == nil || r.pool == nil {
		return nil, 0, fmt.Errorf("transaction: repository not initialised")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + entryColumns + ` FROM transactions t JOIN accounts a ON a.id = t.account_id
		WHERE t.account_id = $1 ORDER BY t.id DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Append inserts a ledger entry outside any unit of work; used for the
// best-effort failed-attempt records.
func (r *PgRepository) Append(ctx context.Context, entry Entry) (Entry, error) {
	if r == nil || r.pool == nil {
		return Entry{}, fmt.Errorf("transaction: repository not initialised")
	}
	return insertEntry(ctx, r.pool, entry)
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("transaction: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

// AccountForUpdate locks the account row for the remainder of the transaction.
func (r *pgTxRepository) AccountForUpdate(ctx context.Context, number string) (account.Account, error) {
	const query = `SELECT id, user_id, account_number, status, balance, opened_at, closed_at, created_at, updated_at
		FROM accounts WHERE account_number = $1 FOR UPDATE`
	var a account.Account
	if err := r.tx.QueryRow(ctx, query, number).Scan(&a.ID, &a.UserID, &a.Number, &a.Status, &a.Balance,
		&a.OpenedAt, &a.ClosedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, err
	}
	return a, nil
}

// UpdateBalance persists the new balance for the account row.
func (r *pgTxRepository) UpdateBalance(ctx context.Context, accountID, balance int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1`, accountID, balance, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return account.ErrNotFound
	}
	return nil
}

// HasSuccessfulCancel reports whether a successful CANCEL already references
// the original transaction id.
func (r *pgTxRepository) HasSuccessfulCancel(ctx context.Context, originalTransactionID string) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM transactions WHERE original_transaction_id = $1 AND type = $2 AND result = $3)`
	var exists bool
	if err := r.tx.QueryRow(ctx, query, originalTransactionID, TypeCancel, ResultSuccess).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Append inserts a ledger entry inside the unit of work.
func (r *pgTxRepository) Append(ctx context.Context, entry Entry) (Entry, error) {
	return insertEntry(ctx, r.tx, entry)
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertEntry(ctx context.Context, q execQuerier, entry Entry) (Entry, error) {
	const query = `
		INSERT INTO transactions (transaction_id, type, result, account_id, amount, balance_snapshot, original_transaction_id, transacted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $9)
		RETURNING id, created_at, updated_at`
	now := time.Now()
	if err := q.QueryRow(ctx, query,
		entry.TransactionID, entry.Type, entry.Result, entry.AccountID, entry.Amount,
		entry.BalanceSnapshot, entry.OriginalTransactionID, entry.TransactedAt, now).
		Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Entry{}, fmt.Errorf("transaction: id %s already recorded: %w", entry.TransactionID, err)
		}
		return Entry{}, err
	}
	return entry, nil
}
