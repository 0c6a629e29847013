package account

import "time"

// CreateRequest is the payload for POST /account.
type CreateRequest struct {
	UserID         int64 `json:"user_id" validate:"required,min=1"`
	InitialBalance int64 `json:"initial_balance" validate:"min=0"`
}

// CreateResponse is the projection returned after account creation.
type CreateResponse struct {
	UserID        int64     `json:"user_id"`
	AccountNumber string    `json:"account_number"`
	OpenedAt      time.Time `json:"opened_at"`
}

// CloseRequest is the payload for DELETE /account.
type CloseRequest struct {
	UserID        int64  `json:"user_id" validate:"required,min=1"`
	AccountNumber string `json:"account_number" validate:"required,len=10,numeric"`
}

// CloseResponse is the projection returned after account closure.
type CloseResponse struct {
	UserID        int64     `json:"user_id"`
	AccountNumber string    `json:"account_number"`
	ClosedAt      time.Time `json:"closed_at"`
}

// Summary is one row of a user's account listing.
type Summary struct {
	AccountNumber string `json:"account_number"`
	Balance       int64  `json:"balance"`
	Status        Status `json:"status"`
}
