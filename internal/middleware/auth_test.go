package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockVerifier is a TokenVerifier for testing
type mockVerifier struct {
	verifyIDTokenFunc func(ctx context.Context, idToken string) (*auth.Token, error)
}

func (m *mockVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if m.verifyIDTokenFunc != nil {
		return m.verifyIDTokenFunc(ctx, idToken)
	}
	return nil, errors.New("not implemented")
}

func okHandler(t *testing.T, wantUserID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r.Context())
		require.True(t, ok, "user ID should be in context")
		assert.Equal(t, wantUserID, userID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth_ValidToken(t *testing.T) {
	verifier := &mockVerifier{
		verifyIDTokenFunc: func(ctx context.Context, idToken string) (*auth.Token, error) {
			assert.Equal(t, "valid-token", idToken)
			return &auth.Token{
				UID:    "user-123",
				Claims: map[string]interface{}{"email": "user@example.com"},
			}, nil
		},
	}
	m := NewAuthMiddleware(verifier)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()

	m.RequireAuth(okHandler(t, "user-123")).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_SetsAuthInfo(t *testing.T) {
	verifier := &mockVerifier{
		verifyIDTokenFunc: func(ctx context.Context, idToken string) (*auth.Token, error) {
			return &auth.Token{
				UID:    "user-123",
				Claims: map[string]interface{}{"email": "user@example.com"},
			}, nil
		},
	}
	m := NewAuthMiddleware(verifier)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := GetAuth(r)
		require.True(t, ok)
		assert.Equal(t, "user-123", info.UserID)
		assert.Equal(t, "user@example.com", info.Email)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()

	m.RequireAuth(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
	}{
		{
			name:       "missing header",
			authHeader: "",
		},
		{
			name:       "not bearer",
			authHeader: "Basic dXNlcjpwYXNz",
		},
		{
			name:       "malformed header",
			authHeader: "Bearer",
		},
		{
			name:       "invalid token",
			authHeader: "Bearer bad-token",
		},
	}

	verifier := &mockVerifier{
		verifyIDTokenFunc: func(ctx context.Context, idToken string) (*auth.Token, error) {
			return nil, errors.New("token verification failed")
		},
	}
	m := NewAuthMiddleware(verifier)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			m.RequireAuth(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestGetUserID_Missing(t *testing.T) {
	_, ok := GetUserID(context.Background())
	assert.False(t, ok)
}

func TestCORS_Preflight(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached for preflight")
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/import", nil)
	rec := httptest.NewRecorder()

	CORS(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PassThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	CORS(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
