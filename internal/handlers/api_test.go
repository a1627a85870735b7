package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finwise/ofxledger/internal/domain"
	"github.com/finwise/ofxledger/internal/middleware"
)

type fakeLedger struct {
	accounts     []*domain.Account
	transactions []*domain.Transaction
	err          error
	deletedID    int64
	deletedOwner string
}

func (f *fakeLedger) ListAccounts(ctx context.Context, owner string) ([]*domain.Account, error) {
	return f.accounts, f.err
}

func (f *fakeLedger) ListTransactions(ctx context.Context, accountID int64, limit int) ([]*domain.Transaction, error) {
	return f.transactions, f.err
}

func (f *fakeLedger) DeleteAccount(ctx context.Context, owner string, accountID int64) error {
	if f.err != nil {
		return f.err
	}
	f.deletedOwner = owner
	f.deletedID = accountID
	return nil
}

// newAPIMux registers the handler under the same patterns the server uses,
// so PathValue lookups work in tests.
func newAPIMux(h *APIHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/accounts", h.GetAccounts)
	mux.HandleFunc("/api/accounts/{id}", h.DeleteAccount)
	mux.HandleFunc("/api/accounts/{id}/transactions", h.GetTransactions)
	return mux
}

func authedRequest(method, target, owner string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, owner)
	return req.WithContext(ctx)
}

func TestGetAccounts(t *testing.T) {
	ledger := &fakeLedger{accounts: []*domain.Account{
		{ID: 1, Owner: "alice", Kind: domain.StatementKindBank, AcctID: "A", CreatedAt: time.Now()},
	}}
	mux := newAPIMux(NewAPIHandler(ledger))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/accounts", "alice"))

	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []*domain.Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&accounts))
	require.Len(t, accounts, 1)
	assert.Equal(t, "A", accounts[0].AcctID)
}

func TestGetAccounts_EmptyIsArray(t *testing.T) {
	mux := newAPIMux(NewAPIHandler(&fakeLedger{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/accounts", "alice"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGetAccounts_Unauthenticated(t *testing.T) {
	mux := newAPIMux(NewAPIHandler(&fakeLedger{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetTransactions(t *testing.T) {
	ledger := &fakeLedger{
		accounts: []*domain.Account{{ID: 7, Owner: "alice", AcctID: "A"}},
		transactions: []*domain.Transaction{
			{ID: 1, AccountID: 7, FitID: "F1", Amount: -10},
		},
	}
	mux := newAPIMux(NewAPIHandler(ledger))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/accounts/7/transactions", "alice"))

	require.Equal(t, http.StatusOK, rec.Code)
	var txns []*domain.Transaction
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&txns))
	require.Len(t, txns, 1)
	assert.Equal(t, "F1", txns[0].FitID)
}

func TestGetTransactions_ForeignAccount(t *testing.T) {
	// Account 7 does not belong to the requesting owner
	ledger := &fakeLedger{accounts: []*domain.Account{{ID: 3, Owner: "alice"}}}
	mux := newAPIMux(NewAPIHandler(ledger))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/accounts/7/transactions", "alice"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTransactions_BadLimit(t *testing.T) {
	ledger := &fakeLedger{accounts: []*domain.Account{{ID: 7, Owner: "alice"}}}
	mux := newAPIMux(NewAPIHandler(ledger))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/accounts/7/transactions?limit=-1", "alice"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAccount(t *testing.T) {
	ledger := &fakeLedger{}
	mux := newAPIMux(NewAPIHandler(ledger))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/accounts/42", "alice"))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(42), ledger.deletedID)
	assert.Equal(t, "alice", ledger.deletedOwner)
}

func TestDeleteAccount_WrongMethod(t *testing.T) {
	mux := newAPIMux(NewAPIHandler(&fakeLedger{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/accounts/42", "alice"))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDeleteAccount_NotFound(t *testing.T) {
	mux := newAPIMux(NewAPIHandler(&fakeLedger{err: errors.New("account 42 not found")}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/accounts/42", "alice"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
