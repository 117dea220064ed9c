// Package identity talks to the hosted identity provider (a GoTrue compatible
// auth server). Accounts, passwords and token issuance live there; this
// package only calls it and verifies the tokens it signs.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Errors returned by the provider client.
var (
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrUserExists         = errors.New("identity: user already registered")
	ErrWeakPassword       = errors.New("identity: password rejected")
	ErrRejected           = errors.New("identity: request rejected")
	ErrInvalidToken       = errors.New("identity: invalid or expired token")
	ErrUserNotFound       = errors.New("identity: user not found")
)

// User is an account as reported by the provider.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

// Session is a successful password grant.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	User         User   `json:"user"`
}

// Provider is the identity capability the API depends on.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	VerifyToken(ctx context.Context, token string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, email, password string) (*User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Config configures the GoTrue client.
type Config struct {
	BaseURL        string
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
	Timeout        time.Duration
}

// Client implements Provider over the GoTrue REST API.
type Client struct {
	baseURL        string
	anonKey        string
	serviceRoleKey string
	jwtSecret      []byte
	http           *http.Client
}

// NewClient builds a provider client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		anonKey:        cfg.AnonKey,
		serviceRoleKey: cfg.ServiceRoleKey,
		jwtSecret:      []byte(cfg.JWTSecret),
		http:           httpClient,
	}
}

type credentials struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	EmailConfirm bool   `json:"email_confirm,omitempty"`
}

// apiError is the error body GoTrue returns; older versions use error/error_description.
type apiError struct {
	Status           int    `json:"-"`
	Code             string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorName        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e *apiError) Error() string {
	for _, candidate := range []string{e.Msg, e.Message, e.ErrorDescription, e.ErrorName} {
		if candidate != "" {
			return fmt.Sprintf("identity provider: %s (status %d)", candidate, e.Status)
		}
	}
	return fmt.Sprintf("identity provider: status %d", e.Status)
}

func (e *apiError) text() string {
	return strings.ToLower(strings.Join([]string{e.Code, e.Msg, e.Message, e.ErrorName, e.ErrorDescription}, " "))
}

// SignUp registers a new account.
func (c *Client) SignUp(ctx context.Context, email, password string) (*User, error) {
	var body struct {
		User
		Nested *User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/v1/signup", c.anonKey, credentials{Email: email, Password: password}, &body)
	if err != nil {
		return nil, classifySignUp(err)
	}
	// With email confirmation off GoTrue answers with a session wrapping the user.
	if body.Nested != nil && body.Nested.ID != "" {
		return body.Nested, nil
	}
	if body.ID == "" {
		return nil, fmt.Errorf("identity provider: signup returned no user")
	}
	return &body.User, nil
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", c.anonKey, credentials{Email: email, Password: password}, &session)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, ErrInvalidCredentials
	}
	return &session, nil
}

// VerifyToken validates an access token. With a JWT secret the signature is checked
// locally; otherwise the provider is asked who the bearer is.
func (c *Client) VerifyToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	if len(c.jwtSecret) > 0 {
		return c.verifyLocal(token)
	}
	var user User
	err := c.doWithBearer(ctx, http.MethodGet, "/auth/v1/user", c.anonKey, token, nil, &user)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if user.ID == "" {
		return nil, ErrInvalidToken
	}
	return &user, nil
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (c *Client) verifyLocal(token string) (*User, error) {
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &User{ID: claims.Subject, Email: claims.Email}, nil
}

// ListUsers returns every account. Requires the service role key.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	users := make([]User, 0)
	const perPage = 100
	for page := 1; ; page++ {
		var body struct {
			Users []User `json:"users"`
		}
		path := fmt.Sprintf("/auth/v1/admin/users?page=%d&per_page=%d", page, perPage)
		if err := c.doWithBearer(ctx, http.MethodGet, path, c.serviceRoleKey, c.serviceRoleKey, nil, &body); err != nil {
			return nil, err
		}
		users = append(users, body.Users...)
		if len(body.Users) < perPage {
			return users, nil
		}
	}
}

// CreateUser provisions a confirmed account. Requires the service role key.
func (c *Client) CreateUser(ctx context.Context, email, password string) (*User, error) {
	var user User
	payload := credentials{Email: email, Password: password, EmailConfirm: true}
	if err := c.doWithBearer(ctx, http.MethodPost, "/auth/v1/admin/users", c.serviceRoleKey, c.serviceRoleKey, payload, &user); err != nil {
		return nil, classifySignUp(err)
	}
	return &user, nil
}

// DeleteUser removes an account. Requires the service role key.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	path := "/auth/v1/admin/users/" + url.PathEscape(id)
	if err := c.doWithBearer(ctx, http.MethodDelete, path, c.serviceRoleKey, c.serviceRoleKey, nil, nil); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, apiKey string, payload, out interface{}) error {
	return c.doWithBearer(ctx, method, path, apiKey, apiKey, payload, out)
}

func (c *Client) doWithBearer(ctx context.Context, method, path, apiKey, bearer string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode identity request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("apikey", apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read identity response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}

func classifySignUp(err error) error {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return err
	}
	text := apiErr.text()
	switch {
	case apiErr.Status == http.StatusConflict || strings.Contains(text, "already") || strings.Contains(text, "email_exists") || strings.Contains(text, "user_already_exists"):
		return fmt.Errorf("%w: %s", ErrUserExists, apiErr.Error())
	case strings.Contains(text, "password"):
		return fmt.Errorf("%w: %s", ErrWeakPassword, apiErr.Error())
	case apiErr.Status < http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrRejected, apiErr.Error())
	default:
		return err
	}
}
