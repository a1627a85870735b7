package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/finwise/ofxledger/internal/categorize"
	"github.com/finwise/ofxledger/internal/importer"
	"github.com/finwise/ofxledger/internal/middleware"
	"github.com/finwise/ofxledger/internal/ofx"
)

// maxImportBytes caps the statement upload size. Real statement files run
// tens of kilobytes; 10MB leaves generous headroom.
const maxImportBytes = 10 << 20

// ImportService interface for dependency injection
type ImportService interface {
	Import(ctx context.Context, owner string, data []byte) (*importer.Result, error)
}

// ImportHandler handles statement uploads
type ImportHandler struct {
	service ImportService
}

// NewImportHandler creates a new import handler
func NewImportHandler(service ImportService) *ImportHandler {
	return &ImportHandler{service: service}
}

// importResponse is the JSON body returned for a completed import
type importResponse struct {
	SessionID       string            `json:"sessionId"`
	Strategy        string            `json:"strategy"`
	Accounts        int               `json:"accounts"`
	NewTransactions int               `json:"newTransactions"`
	Categorized     *categorize.Stats `json:"categorized,omitempty"`
}

// Import handles POST /api/import. The request body is the raw statement
// file.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Statement file too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "Empty statement file", http.StatusBadRequest)
		return
	}

	result, err := h.service.Import(r.Context(), owner, body)
	if err != nil {
		h.writeImportError(w, owner, err)
		return
	}

	resp := importResponse{
		SessionID: result.SessionID,
		Strategy:  result.Strategy,
		Accounts:  len(result.Statements),
	}
	if result.Reconciled != nil {
		resp.NewTransactions = result.Reconciled.NewTransactions()
	}
	resp.Categorized = result.Categorized

	writeJSON(w, owner, resp)
}

// writeImportError maps parse rejections to client errors. Anything not in
// the parse error taxonomy is a server fault.
func (h *ImportHandler) writeImportError(w http.ResponseWriter, owner string, err error) {
	var fallbackErr *importer.FallbackError
	switch {
	case errors.Is(err, ofx.ErrRequestOnly):
		http.Error(w, "File is an OFX request, not a statement", http.StatusUnprocessableEntity)
	case errors.Is(err, ofx.ErrUnsupportedDocument):
		http.Error(w, "Unsupported document type", http.StatusUnprocessableEntity)
	case errors.Is(err, ofx.ErrNoTransactions):
		http.Error(w, "Statement contains no transactions", http.StatusUnprocessableEntity)
	case errors.As(err, &fallbackErr):
		http.Error(w, "Unable to parse statement file", http.StatusUnprocessableEntity)
	default:
		log.Printf("ERROR: Import failed for user %s: %v", owner, err)
		http.Error(w, "Import failed", http.StatusInternalServerError)
	}
}
