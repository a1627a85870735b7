package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/finwise/ofxledger/internal/domain"
	"github.com/finwise/ofxledger/internal/middleware"
)

// Ledger interface for dependency injection
type Ledger interface {
	ListAccounts(ctx context.Context, owner string) ([]*domain.Account, error)
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]*domain.Transaction, error)
	DeleteAccount(ctx context.Context, owner string, accountID int64) error
}

// APIHandler handles ledger read and management requests
type APIHandler struct {
	ledger Ledger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(ledger Ledger) *APIHandler {
	return &APIHandler{ledger: ledger}
}

// GetAccounts handles GET /api/accounts
func (h *APIHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	accounts, err := h.ledger.ListAccounts(r.Context(), owner)
	if err != nil {
		log.Printf("ERROR: Failed to list accounts for user %s: %v", owner, err)
		http.Error(w, "Failed to fetch accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []*domain.Account{}
	}

	writeJSON(w, owner, accounts)
}

// GetTransactions handles GET /api/accounts/{id}/transactions
func (h *APIHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	accountID, ok := h.ownedAccount(w, r, owner)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	transactions, err := h.ledger.ListTransactions(r.Context(), accountID, limit)
	if err != nil {
		log.Printf("ERROR: Failed to list transactions for user %s account %d: %v", owner, accountID, err)
		http.Error(w, "Failed to fetch transactions", http.StatusInternalServerError)
		return
	}
	if transactions == nil {
		transactions = []*domain.Transaction{}
	}

	writeJSON(w, owner, transactions)
}

// DeleteAccount handles DELETE /api/accounts/{id}. Removing an account
// removes its transactions with it.
func (h *APIHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	accountID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid account ID", http.StatusBadRequest)
		return
	}

	if err := h.ledger.DeleteAccount(r.Context(), owner, accountID); err != nil {
		log.Printf("WARN: Failed to delete account %d for user %s: %v", accountID, owner, err)
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedAccount parses the {id} path value and verifies it belongs to the
// owner. The store scopes transactions by account ID only, so ownership is
// checked here before any transaction read.
func (h *APIHandler) ownedAccount(w http.ResponseWriter, r *http.Request, owner string) (int64, bool) {
	accountID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid account ID", http.StatusBadRequest)
		return 0, false
	}

	accounts, err := h.ledger.ListAccounts(r.Context(), owner)
	if err != nil {
		log.Printf("ERROR: Failed to list accounts for user %s: %v", owner, err)
		http.Error(w, "Failed to fetch accounts", http.StatusInternalServerError)
		return 0, false
	}
	for _, acct := range accounts {
		if acct.ID == accountID {
			return accountID, true
		}
	}

	http.Error(w, "Account not found", http.StatusNotFound)
	return 0, false
}

func writeJSON(w http.ResponseWriter, owner string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to encode response for user %s: %v", owner, err)
	}
}
