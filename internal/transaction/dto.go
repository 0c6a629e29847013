package transaction

import "time"

type UseRequest struct {
	UserID        int64  `json:"user_id" validate:"required,min=1"`
	AccountNumber string `json:"account_number" validate:"required,len=10,numeric"`
	Amount        int64  `json:"amount" validate:"required,min=10,max=1000000000"`
}

type CancelRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required,len=10,numeric"`
	Amount        int64  `json:"amount" validate:"required,min=10,max=1000000000"`
}

type MutationResponse struct {
	AccountNumber string    `json:"account_number"`
	Result        Result    `json:"result"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	TransactedAt  time.Time `json:"transacted_at"`
}

type QueryResponse struct {
	AccountNumber string    `json:"account_number"`
	Type          Type      `json:"transaction_type"`
	Result        Result    `json:"result"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	TransactedAt  time.Time `json:"transacted_at"`
}

func newMutationResponse(e Entry) MutationResponse {
	return MutationResponse{
		AccountNumber: e.AccountNumber,
		Result:        e.Result,
		TransactionID: e.TransactionID,
		Amount:        e.Amount,
		TransactedAt:  e.TransactedAt,
	}
}

func newQueryResponse(e Entry) QueryResponse {
	return QueryResponse{
		AccountNumber: e.AccountNumber,
		Type:          e.Type,
		Result:        e.Result,
		TransactionID: e.TransactionID,
		Amount:        e.Amount,
		TransactedAt:  e.TransactedAt,
	}
}
