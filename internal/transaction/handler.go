package transaction

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/corebank/corebank/internal/account"
	"github.com/corebank/corebank/internal/lock"
	"github.com/corebank/corebank/internal/platform/httpx"
	"github.com/corebank/corebank/internal/shared"
	"github.com/corebank/corebank/internal/users"
)

// Engine is the balance engine surface the handler drives.
type Engine interface {
	Use(ctx context.Context, userID int64, accountNumber string, amount int64) (Entry, error)
	Cancel(ctx context.Context, transactionID, accountNumber string, amount int64) (Entry, error)
	Query(ctx context.Context, transactionID string) (Entry, error)
	ListForAccount(ctx context.Context, accountNumber string, page, perPage int) ([]Entry, shared.Pagination, error)
	RecordFailedUse(ctx context.Context, accountNumber string, amount int64) (Entry, error)
	RecordFailedCancel(ctx context.Context, accountNumber string, amount int64) (Entry, error)
}

type Handler struct {
	engine   Engine
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandler(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/transaction", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			r.Post("/use", h.use)
			r.Post("/cancel", h.cancel)
		})
		r.Get("/{transactionID}", h.query)
	})
	r.Get("/account/{accountNumber}/transactions", h.list)
}

func (h *Handler) use(w http.ResponseWriter, r *http.Request) {
	var req UseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	entry, err := h.engine.Use(r.Context(), req.UserID, req.AccountNumber, req.Amount)
	if err != nil {
		h.recordFailure(r.Context(), TypeUse, req.AccountNumber, req.Amount, err)
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newMutationResponse(entry))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	entry, err := h.engine.Cancel(r.Context(), req.TransactionID, req.AccountNumber, req.Amount)
	if err != nil {
		h.recordFailure(r.Context(), TypeCancel, req.AccountNumber, req.Amount, err)
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newMutationResponse(entry))
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.Query(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newQueryResponse(entry))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageParams(r, 100)
	entries, pagination, err := h.engine.ListForAccount(r.Context(), chi.URLParam(r, "accountNumber"), page, perPage)
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]QueryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, newQueryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": items,
		"pagination":   pagination,
	})
}

// recordFailure appends an audit entry for a rejected mutation. When the
// request never resolved to an account or referenced entities that do not
// exist, there is nothing to append against.
func (h *Handler) recordFailure(ctx context.Context, entryType Type, accountNumber string, amount int64, cause error) {
	if errors.Is(cause, users.ErrNotFound) || errors.Is(cause, account.ErrNotFound) || errors.Is(cause, ErrNotFound) {
		return
	}
	var err error
	switch entryType {
	case TypeCancel:
		_, err = h.engine.RecordFailedCancel(ctx, accountNumber, amount)
	default:
		_, err = h.engine.RecordFailedUse(ctx, accountNumber, amount)
	}
	if err != nil {
		h.logger.Warn("record failed transaction",
			slog.String("account_number", accountNumber),
			slog.String("type", string(entryType)),
			slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, users.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "USER_NOT_FOUND", "user does not exist")
	case errors.Is(err, account.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "account does not exist")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "TRANSACTION_NOT_FOUND", "transaction does not exist")
	case errors.Is(err, account.ErrOwnerMismatch):
		httpx.Problem(w, http.StatusForbidden, "USER_ACCOUNT_UNMATCH", "account is not owned by the user")
	case errors.Is(err, account.ErrAlreadyClosed):
		httpx.Problem(w, http.StatusConflict, "ACCOUNT_ALREADY_CLOSED", "account is closed")
	case errors.Is(err, ErrBalanceExceeded):
		httpx.Problem(w, http.StatusConflict, "BALANCE_EXCEEDED", "amount exceeds the account balance")
	case errors.Is(err, ErrAccountMismatch):
		httpx.Problem(w, http.StatusConflict, "TRANSACTION_ACCOUNT_UNMATCH", "transaction does not belong to the account")
	case errors.Is(err, ErrAmountMismatch):
		httpx.Problem(w, http.StatusConflict, "AMOUNT_MISMATCH", "amount differs from the original transaction")
	case errors.Is(err, ErrCancellationExpired):
		httpx.Problem(w, http.StatusConflict, "TRANSACTION_CANCELLATION_EXPIRED", "transaction is older than one year")
	case errors.Is(err, ErrNotCancellable):
		httpx.Problem(w, http.StatusConflict, "TRANSACTION_NOT_CANCELLABLE", "only successful use transactions can be cancelled")
	case errors.Is(err, ErrAlreadyCancelled):
		httpx.Problem(w, http.StatusConflict, "TRANSACTION_ALREADY_CANCELLED", "transaction is already cancelled")
	case errors.Is(err, lock.ErrTimeout):
		httpx.Problem(w, http.StatusConflict, "LOCK_TIMEOUT", "account is busy, retry shortly")
	default:
		h.logger.Error("transaction request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
