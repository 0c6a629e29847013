package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists users.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByID fetches a single user.
func (r *Repository) FindByID(ctx context.Context, id int64) (User, error) {
	if r == nil || r.pool == nil {
		return User{}, fmt.Errorf("users: repository not initialised")
	}
	const query = `SELECT id, user_name, created_at, updated_at FROM users WHERE id = $1`
	var u User
	if err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// Insert creates a new user.
func (r *Repository) Insert(ctx context.Context, name string) (User, error) {
	if r == nil || r.pool == nil {
		return User{}, fmt.Errorf("users: repository not initialised")
	}
	now := time.Now()
	const query = `INSERT INTO users (user_name, created_at, updated_at) VALUES ($1, $2, $2) RETURNING id`
	u := User{Name: name}
	u.CreatedAt = now
	u.UpdatedAt = now
	if err := r.pool.QueryRow(ctx, query, name, now).Scan(&u.ID); err != nil {
		return User{}, err
	}
	return u, nil
}
