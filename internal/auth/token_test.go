package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestVerifyValidToken(t *testing.T) {
	key := testKey(t)
	id := Identity{UserID: uuid.New(), TenantID: "tenant-a", Name: "Alice"}

	token, err := Sign(key, id, time.Minute)
	require.NoError(t, err)

	got, err := NewVerifier(&key.PublicKey).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, *got)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	key := testKey(t)
	other := testKey(t)
	v := NewVerifier(&key.PublicKey)

	_, err := v.Verify("   ")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = v.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := Sign(key, Identity{UserID: uuid.New()}, -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	foreign, err := Sign(other, Identity{UserID: uuid.New()}, time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsHMACAndBadSubject(t *testing.T) {
	key := testKey(t)
	v := NewVerifier(&key.PublicKey)

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.Verify(hs)
	assert.ErrorIs(t, err, ErrInvalidToken)

	badSub, err := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(key)
	require.NoError(t, err)
	_, err = v.Verify(badSub)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRequiresExpiry(t *testing.T) {
	key := testKey(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
	}).SignedString(key)
	require.NoError(t, err)

	_, err = NewVerifier(&key.PublicKey).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
