package account

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/corebank/corebank/internal/lock"
	"github.com/corebank/corebank/internal/platform/httpx"
	"github.com/corebank/corebank/internal/users"
)

// Handler wires account endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the account handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers account routes on the root router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/account", h.create)
	r.Delete("/account", h.close)
	r.Get("/account", h.list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := h.service.Create(r.Context(), req.UserID, req.InitialBalance)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, CreateResponse{
		UserID:        acc.UserID,
		AccountNumber: acc.Number,
		OpenedAt:      acc.OpenedAt,
	})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	var req CloseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := h.service.Close(r.Context(), req.UserID, req.AccountNumber)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := CloseResponse{UserID: acc.UserID, AccountNumber: acc.Number}
	if acc.ClosedAt != nil {
		resp.ClosedAt = *acc.ClosedAt
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "INVALID_REQUEST", "user_id must be a positive integer")
		return
	}
	accounts, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	summaries := make([]Summary, 0, len(accounts))
	for _, acc := range accounts {
		summaries = append(summaries, Summary{AccountNumber: acc.Number, Balance: acc.Balance, Status: acc.Status})
	}
	httpx.JSON(w, http.StatusOK, summaries)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, users.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
	case errors.Is(err, ErrLimitExceeded):
		httpx.Problem(w, http.StatusConflict, "ACCOUNT_LIMIT_EXCEEDED", "user already holds the maximum number of accounts")
	case errors.Is(err, ErrOwnerMismatch):
		httpx.Problem(w, http.StatusForbidden, "USER_ACCOUNT_UNMATCH", "user does not own this account")
	case errors.Is(err, ErrAlreadyClosed):
		httpx.Problem(w, http.StatusConflict, "ACCOUNT_ALREADY_CLOSED", "account already closed")
	case errors.Is(err, ErrHasBalance):
		httpx.Problem(w, http.StatusConflict, "ACCOUNT_HAS_BALANCE", "account still carries a balance")
	case errors.Is(err, lock.ErrTimeout):
		httpx.Problem(w, http.StatusConflict, "LOCK_TIMEOUT", "account is busy, try again")
	default:
		h.logger.Error("account request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
