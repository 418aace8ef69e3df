package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/godamri/helix-audit/crypto"
)

func TestHashSecretRoundTrip(t *testing.T) {
	hasher := crypto.NewHasher(crypto.HashConfig{Cost: 4})

	hash, err := hasher.HashSecret("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, crypto.CheckSecret(hash, "s3cret"))
	assert.False(t, crypto.CheckSecret(hash, "wrong"))
	assert.False(t, crypto.CheckSecret("not-a-bcrypt-hash", "s3cret"))
}

func TestHashSecretRejectsEmpty(t *testing.T) {
	hasher := crypto.NewHasher(crypto.HashConfig{Cost: 4})

	_, err := hasher.HashSecret("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret cannot be empty")
}

func TestNewHasherClampsAbsurdCost(t *testing.T) {
	hasher := crypto.NewHasher(crypto.HashConfig{Cost: 99})

	hash, err := hasher.HashSecret("s3cret")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 12, cost)
}
