package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token errors.
var (
	ErrTokenInvalid = errors.New("storage: invalid download token")
	ErrTokenExpired = errors.New("storage: download token expired")
)

// Grant is what a download token authorises.
type Grant struct {
	JobID     string
	Path      string
	ExpiresAt time.Time
}

// Signer issues HMAC-SHA256 download tokens of the form payload.signature,
// both base64url encoded. The payload is "jobID\npath\nexpiry".
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner builds a signer. A non-positive ttl defaults to one day.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued tokens.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Sign issues a token for the stored file of a job.
func (s *Signer) Sign(jobID, path string) (string, Grant, error) {
	if len(s.secret) == 0 {
		return "", Grant{}, errors.New("storage: signing secret missing")
	}
	if jobID == "" || path == "" || strings.ContainsRune(jobID+path, '\n') {
		return "", Grant{}, fmt.Errorf("%w: job id and path required", ErrTokenInvalid)
	}
	grant := Grant{JobID: jobID, Path: path, ExpiresAt: s.now().Add(s.ttl).Truncate(time.Second)}
	payload := []byte(strings.Join([]string{jobID, path, strconv.FormatInt(grant.ExpiresAt.Unix(), 10)}, "\n"))
	token := base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(s.mac(payload))
	return token, grant, nil
}

// Verify checks the signature and expiry of a token.
func (s *Signer) Verify(token string) (Grant, error) {
	encPayload, encSig, ok := strings.Cut(token, ".")
	if !ok {
		return Grant{}, ErrTokenInvalid
	}
	payload, err := base64.RawURLEncoding.DecodeString(encPayload)
	if err != nil {
		return Grant{}, ErrTokenInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil || !hmac.Equal(sig, s.mac(payload)) {
		return Grant{}, ErrTokenInvalid
	}
	parts := strings.Split(string(payload), "\n")
	if len(parts) != 3 {
		return Grant{}, ErrTokenInvalid
	}
	exp, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Grant{}, ErrTokenInvalid
	}
	grant := Grant{JobID: parts[0], Path: parts[1], ExpiresAt: time.Unix(exp, 0)}
	if s.now().After(grant.ExpiresAt) {
		return grant, ErrTokenExpired
	}
	return grant, nil
}

func (s *Signer) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write(payload)
	return h.Sum(nil)
}
