package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, grant, err := signer.Sign("job-1", "trends/job-1.csv")
	require.NoError(t, err)

	got, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "trends/job-1.csv", got.Path)
	assert.True(t, grant.ExpiresAt.Equal(got.ExpiresAt))
}

func TestSignerRejectsTamperingAndExpiry(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, _, err := signer.Sign("job-1", "trends/job-1.csv")
	require.NoError(t, err)

	_, err = NewSigner("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = signer.Verify("garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	grant, err := signer.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, "job-1", grant.JobID)

	_, _, err = NewSigner("", time.Hour).Sign("job", "path")
	assert.Error(t, err)
}
