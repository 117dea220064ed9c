package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, secret string) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL, AnonKey: "anon", ServiceRoleKey: "service", JWTSecret: secret}, server.Client())
}

func TestSignUpReturnsNestedUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		var body credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "new@example.com", body.Email)
		_, _ = w.Write([]byte(`{"access_token":"t","user":{"id":"u-1","email":"new@example.com"}}`))
	}, "")

	user, err := client.SignUp(context.Background(), "new@example.com", "s3cret!!")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
}

func TestSignUpClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"duplicate", http.StatusUnprocessableEntity, `{"error_code":"user_already_exists","msg":"User already registered"}`, ErrUserExists},
		{"weak password", http.StatusUnprocessableEntity, `{"msg":"Password should be at least 6 characters"}`, ErrWeakPassword},
		{"other rejection", http.StatusBadRequest, `{"msg":"Unable to validate email address"}`, ErrRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, "")
			_, err := client.SignUp(context.Background(), "a@example.com", "x")
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestSignIn(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		var body credentials
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "right" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"token-1","refresh_token":"r","expires_in":3600,"user":{"id":"u-1","email":"a@example.com"}}`))
	}, "")

	session, err := client.SignIn(context.Background(), "a@example.com", "right")
	require.NoError(t, err)
	assert.Equal(t, "token-1", session.AccessToken)
	assert.Equal(t, "u-1", session.User.ID)

	_, err = client.SignIn(context.Background(), "a@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func signToken(t *testing.T, secret string, claims accessClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerifyTokenLocally(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("provider must not be called when a secret is configured")
	}, "jwt-secret")

	valid := signToken(t, "jwt-secret", accessClaims{
		Email: "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	user, err := client.VerifyToken(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, "a@example.com", user.Email)

	expired := signToken(t, "jwt-secret", accessClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	_, err = client.VerifyToken(context.Background(), expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	forged := signToken(t, "other-secret", accessClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	_, err = client.VerifyToken(context.Background(), forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = client.VerifyToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenRemotely(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"u-2","email":"b@example.com"}`))
	}, "")

	user, err := client.VerifyToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u-2", user.ID)

	_, err = client.VerifyToken(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAdminUsers(t *testing.T) {
	deleted := ""
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer service", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/auth/v1/admin/users":
			_, _ = w.Write([]byte(`{"users":[{"id":"u-1","email":"a@example.com"},{"id":"u-2","email":"b@example.com"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/auth/v1/admin/users":
			var body credentials
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.True(t, body.EmailConfirm)
			_, _ = w.Write([]byte(`{"id":"u-3","email":"` + body.Email + `"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/auth/v1/admin/users/u-3":
			deleted = "u-3"
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"msg":"User not found"}`))
		}
	}, "")

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)

	created, err := client.CreateUser(context.Background(), "c@example.com", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, "u-3", created.ID)

	require.NoError(t, client.DeleteUser(context.Background(), "u-3"))
	assert.Equal(t, "u-3", deleted)
	assert.ErrorIs(t, client.DeleteUser(context.Background(), "missing"), ErrUserNotFound)
}
