package transaction

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebank/corebank/internal/shared"
	"github.com/corebank/corebank/internal/users"
)

// ============================================================================
// STUB ENGINE
// ============================================================================

type failedRecord struct {
	number string
	amount int64
}

type stubEngine struct {
	useEntry    Entry
	useErr      error
	cancelEntry Entry
	cancelErr   error
	queryEntry  Entry
	queryErr    error
	listEntries []Entry

	failedUses    []failedRecord
	failedCancels []failedRecord
}

func (s *stubEngine) Use(ctx context.Context, userID int64, accountNumber string, amount int64) (Entry, error) {
	return s.useEntry, s.useErr
}

func (s *stubEngine) Cancel(ctx context.Context, transactionID, accountNumber string, amount int64) (Entry, error) {
	return s.cancelEntry, s.cancelErr
}

func (s *stubEngine) Query(ctx context.Context, transactionID string) (Entry, error) {
	return s.queryEntry, s.queryErr
}

func (s *stubEngine) ListForAccount(ctx context.Context, accountNumber string, page, perPage int) ([]Entry, shared.Pagination, error) {
	return s.listEntries, shared.NewPagination(page, perPage, len(s.listEntries)), nil
}

func (s *stubEngine) RecordFailedUse(ctx context.Context, accountNumber string, amount int64) (Entry, error) {
	s.failedUses = append(s.failedUses, failedRecord{number: accountNumber, amount: amount})
	return Entry{}, nil
}

func (s *stubEngine) RecordFailedCancel(ctx context.Context, accountNumber string, amount int64) (Entry, error) {
	s.failedCancels = append(s.failedCancels, failedRecord{number: accountNumber, amount: amount})
	return Entry{}, nil
}

func newTestRouter(engine *stubEngine) http.Handler {
	r := chi.NewRouter()
	NewHandler(engine, slog.Default()).MountRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func problemCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var problem struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem.Code
}

// ============================================================================
// USE ENDPOINT
// ============================================================================

func TestUseEndpoint(t *testing.T) {
	engine := &stubEngine{useEntry: Entry{
		TransactionID: "aaaa0000aaaa0000aaaa0000aaaa0000",
		Type:          TypeUse, Result: ResultSuccess,
		AccountNumber: "1000000000",
		Amount:        300, BalanceSnapshot: 700,
		TransactedAt: time.Now(),
	}}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/transaction/use",
		`{"user_id":100,"account_number":"1000000000","amount":300}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MutationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1000000000", resp.AccountNumber)
	assert.Equal(t, ResultSuccess, resp.Result)
	assert.Equal(t, int64(300), resp.Amount)
	assert.Empty(t, engine.failedUses)
}

func TestUseEndpointAmountTooSmall(t *testing.T) {
	engine := &stubEngine{}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/transaction/use",
		`{"user_id":100,"account_number":"1000000000","amount":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", problemCode(t, rec))

	// Requests rejected by validation never touch the ledger.
	assert.Empty(t, engine.failedUses)
}

func TestUseEndpointAmountTooLarge(t *testing.T) {
	engine := &stubEngine{}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/transaction/use",
		`{"user_id":100,"account_number":"1000000000","amount":1000000001}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, engine.failedUses)
}

func TestUseEndpointBadAccountNumber(t *testing.T) {
	engine := &stubEngine{}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/transaction/use",
		`{"user_id":100,"account_number":"12345","amount":300}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUseEndpointBalanceExceeded(t *testing.T) {
	engine := &stubEngine{useErr: ErrBalanceExceeded}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/transaction/use",
		`{"user_id":100,"account_number":"1000000000","amount":300}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "BALANCE_EXCEEDED", problemCode(t, rec))

	// The rejected attempt is recorded as a failed ledger entry.
	require.Len(t, engine.failedUses, 1)
	assert.Equal(t, failedRecord{number: "1000000000", amount: 300}, engine.failedUses[0])
}

func TestUseEndpointUserNotFound(t *testing.T) {
	engine := &stubEngine{useErr: users.ErrNotFound}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/transaction/use",
		`{"user_id":999,"account_number":"1000000000","amount":300}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", problemCode(t, rec))

	// No account resolved, so nothing to record against.
	assert.Empty(t, engine.failedUses)
}

// ============================================================================
// CANCEL ENDPOINT
// ============================================================================

func TestCancelEndpoint(t *testing.T) {
	engine := &stubEngine{cancelEntry: Entry{
		TransactionID: "bbbb0000bbbb0000bbbb0000bbbb0000",
		Type:          TypeCancel, Result: ResultSuccess,
		AccountNumber:         "1000000000",
		Amount:                300,
		BalanceSnapshot:       1000,
		OriginalTransactionID: "aaaa0000aaaa0000aaaa0000aaaa0000",
		TransactedAt:          time.Now(),
	}}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/transaction/cancel",
		`{"transaction_id":"aaaa0000aaaa0000aaaa0000aaaa0000","account_number":"1000000000","amount":300}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MutationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bbbb0000bbbb0000bbbb0000bbbb0000", resp.TransactionID)
	assert.Empty(t, engine.failedCancels)
}

func TestCancelEndpointExpired(t *testing.T) {
	engine := &stubEngine{cancelErr: ErrCancellationExpired}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/transaction/cancel",
		`{"transaction_id":"aaaa0000aaaa0000aaaa0000aaaa0000","account_number":"1000000000","amount":300}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TRANSACTION_CANCELLATION_EXPIRED", problemCode(t, rec))
	assert.Len(t, engine.failedCancels, 1)
}

func TestCancelEndpointAlreadyCancelled(t *testing.T) {
	engine := &stubEngine{cancelErr: ErrAlreadyCancelled}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/transaction/cancel",
		`{"transaction_id":"aaaa0000aaaa0000aaaa0000aaaa0000","account_number":"1000000000","amount":300}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TRANSACTION_ALREADY_CANCELLED", problemCode(t, rec))
}

func TestCancelEndpointTransactionNotFound(t *testing.T) {
	engine := &stubEngine{cancelErr: ErrNotFound}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodPost, "/transaction/cancel",
		`{"transaction_id":"missing000000000000000000000000x","account_number":"1000000000","amount":300}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TRANSACTION_NOT_FOUND", problemCode(t, rec))
	assert.Empty(t, engine.failedCancels)
}

// ============================================================================
// QUERY AND LISTING
// ============================================================================

func TestQueryEndpoint(t *testing.T) {
	engine := &stubEngine{queryEntry: Entry{
		TransactionID: "aaaa0000aaaa0000aaaa0000aaaa0000",
		Type:          TypeUse, Result: ResultFailed,
		AccountNumber: "1000000000",
		Amount:        300, BalanceSnapshot: 700,
		TransactedAt: time.Now(),
	}}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodGet, "/transaction/aaaa0000aaaa0000aaaa0000aaaa0000", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, TypeUse, resp.Type)
	assert.Equal(t, ResultFailed, resp.Result)
}

func TestQueryEndpointNotFound(t *testing.T) {
	engine := &stubEngine{queryErr: ErrNotFound}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodGet, "/transaction/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "TRANSACTION_NOT_FOUND", problemCode(t, rec))
}

func TestListEndpoint(t *testing.T) {
	engine := &stubEngine{listEntries: []Entry{
		{TransactionID: "aaaa0000aaaa0000aaaa0000aaaa0000", Type: TypeUse, Result: ResultSuccess, AccountNumber: "1000000000", Amount: 100, TransactedAt: time.Now()},
		{TransactionID: "bbbb0000bbbb0000bbbb0000bbbb0000", Type: TypeCancel, Result: ResultSuccess, AccountNumber: "1000000000", Amount: 100, TransactedAt: time.Now()},
	}}
	router := newTestRouter(engine)

	rec := doJSON(t, router, http.MethodGet, "/account/1000000000/transactions?page=1&per_page=20", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Transactions []QueryResponse `json:"transactions"`
		Pagination   shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Transactions, 2)
	assert.Equal(t, 2, resp.Pagination.Total)
}
