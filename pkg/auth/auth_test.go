package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulnet-ai/soulnet-go/pkg/auth"
)

func newAuthServer(t *testing.T, handler http.HandlerFunc) *auth.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := auth.NewClient(&auth.Config{
		BaseURL: srv.URL,
		AnonKey: "anon-key",
	})
	require.NoError(t, err)
	return client
}

func TestValidateSuccess(t *testing.T) {
	client := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "Bearer valid-token", r.Header.Get("Authorization"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "user-123", "email": "ana@example.com"}`))
	})

	user, err := client.Validate(context.Background(), "valid-token")
	require.NoError(t, err)
	assert.Equal(t, "user-123", user.ID)
	assert.Equal(t, "ana@example.com", user.Email)
}

func TestValidateRejectsEmptyToken(t *testing.T) {
	client := newAuthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an empty token")
	})

	_, err := client.Validate(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateUnauthorized(t *testing.T) {
	client := newAuthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Validate(context.Background(), "expired-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateServerError(t *testing.T) {
	client := newAuthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Validate(context.Background(), "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateRejectsUserWithoutID(t *testing.T) {
	client := newAuthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"email": "ana@example.com"}`))
	})

	_, err := client.Validate(context.Background(), "token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"Bearer  abc123 ", "abc123"},
		{"bearer abc123", ""},
		{"Basic abc123", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, auth.BearerToken(tt.header), tt.header)
	}
}
