package account

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *mockRepository) {
	t.Helper()
	svc, repo, _ := newTestService(t)
	r := chi.NewRouter()
	NewHandler(slog.Default(), svc).MountRoutes(r)
	return r, repo
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

func TestCreateAccountEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/account", `{"user_id":100,"initial_balance":1000}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(100), resp.UserID)
	assert.Equal(t, BaseNumber, resp.AccountNumber)
	assert.False(t, resp.OpenedAt.IsZero())
}

func TestCreateAccountEndpointUserNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/account", `{"user_id":999}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_FOUND", problemCode(t, rec))
}

func TestCreateAccountEndpointMissingUser(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/account", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", problemCode(t, rec))
}

func TestCreateAccountEndpointLimit(t *testing.T) {
	router, repo := newTestRouter(t)

	for i := 0; i < MaxAccountsPerUser; i++ {
		seedAccount(repo, Account{UserID: 100, Number: "100000000" + string(rune('0'+i)), Status: StatusActive})
	}

	rec := doJSON(t, router, http.MethodPost, "/account", `{"user_id":100}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ACCOUNT_LIMIT_EXCEEDED", problemCode(t, rec))
}

func TestCloseAccountEndpoint(t *testing.T) {
	router, repo := newTestRouter(t)

	seedAccount(repo, Account{UserID: 100, Number: "1000000000", Status: StatusActive, Balance: 0})

	rec := doJSON(t, router, http.MethodDelete, "/account", `{"user_id":100,"account_number":"1000000000"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CloseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1000000000", resp.AccountNumber)
	assert.False(t, resp.ClosedAt.IsZero())
}

func TestCloseAccountEndpointHasBalance(t *testing.T) {
	router, repo := newTestRouter(t)

	seedAccount(repo, Account{UserID: 100, Number: "1000000000", Status: StatusActive, Balance: 500})

	rec := doJSON(t, router, http.MethodDelete, "/account", `{"user_id":100,"account_number":"1000000000"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ACCOUNT_HAS_BALANCE", problemCode(t, rec))
}

func TestCloseAccountEndpointBadNumber(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodDelete, "/account", `{"user_id":100,"account_number":"12345"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAccountsEndpoint(t *testing.T) {
	router, repo := newTestRouter(t)

	seedAccount(repo, Account{UserID: 100, Number: "1000000000", Status: StatusActive, Balance: 250})
	seedAccount(repo, Account{UserID: 100, Number: "1000000001", Status: StatusClosed, Balance: 0})

	rec := doJSON(t, router, http.MethodGet, "/account?user_id=100", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	assert.Len(t, summaries, 2)
}

func TestListAccountsEndpointMissingUserID(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/account", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
