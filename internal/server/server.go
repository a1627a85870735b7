// Package server wires the ledger API: statement upload, account and
// transaction reads, all behind Firebase bearer auth.
package server

import (
	"context"
	"fmt"
	"net/http"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/finwise/ofxledger/internal/handlers"
	"github.com/finwise/ofxledger/internal/importer"
	"github.com/finwise/ofxledger/internal/middleware"
	"github.com/finwise/ofxledger/internal/store"
)

// Server represents the ledger API server
type Server struct {
	store *store.Store
	mux   *http.ServeMux
}

// New creates a new server instance. The Firebase project supplies token
// verification; the store and importer supply everything else. An empty
// credentialsFile falls back to application default credentials.
func New(ctx context.Context, projectID, credentialsFile string, st *store.Store, imp *importer.Importer) (*Server, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase auth: %w", err)
	}

	s := &Server{
		store: st,
		mux:   http.NewServeMux(),
	}
	s.setupRoutes(middleware.NewAuthMiddleware(authClient), imp)
	return s, nil
}

// NewWithVerifier creates a server with an explicit token verifier. Used by
// tests to bypass Firebase.
func NewWithVerifier(verifier middleware.TokenVerifier, st *store.Store, imp *importer.Importer) *Server {
	s := &Server{
		store: st,
		mux:   http.NewServeMux(),
	}
	s.setupRoutes(middleware.NewAuthMiddleware(verifier), imp)
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(authMiddleware *middleware.AuthMiddleware, imp *importer.Importer) {
	// Health check (no auth required)
	s.mux.HandleFunc("/health", handlers.HealthCheck)

	apiHandler := handlers.NewAPIHandler(s.store)
	importHandler := handlers.NewImportHandler(imp)

	// Protected API routes
	s.mux.Handle("/api/import", authMiddleware.RequireAuth(http.HandlerFunc(importHandler.Import)))
	s.mux.Handle("/api/accounts", authMiddleware.RequireAuth(http.HandlerFunc(apiHandler.GetAccounts)))
	s.mux.Handle("/api/accounts/{id}", authMiddleware.RequireAuth(http.HandlerFunc(apiHandler.DeleteAccount)))
	s.mux.Handle("/api/accounts/{id}/transactions", authMiddleware.RequireAuth(http.HandlerFunc(apiHandler.GetTransactions)))
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return middleware.CORS(s.mux)
}

// Close closes the server resources
func (s *Server) Close() error {
	return s.store.Close()
}
