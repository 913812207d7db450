package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestConstantTimeEqual(t *testing.T) {
	t.Run("equal strings", func(t *testing.T) {
		assert.True(t, ConstantTimeEqual("ABCDEF", "ABCDEF"))
	})

	t.Run("is case sensitive", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("ABCDEF", "abcdef"))
	})

	t.Run("different lengths", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("ABCDEF", "ABCDE"))
	})

	t.Run("empty strings", func(t *testing.T) {
		assert.True(t, ConstantTimeEqual("", ""))
	})
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-admin"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("accepts matching password", func(t *testing.T) {
		assert.True(t, CheckPasswordHash("s3cret-admin", string(hash)))
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		assert.False(t, CheckPasswordHash("wrong", string(hash)))
	})

	t.Run("rejects malformed hash", func(t *testing.T) {
		assert.False(t, CheckPasswordHash("s3cret-admin", "not-a-hash"))
	})
}

func TestMaskCode(t *testing.T) {
	t.Run("masks all but the first two characters", func(t *testing.T) {
		assert.Equal(t, "ab******", MaskCode("ab12cd34"))
		assert.Equal(t, "QW****", MaskCode("QWERTY"))
	})

	t.Run("fully masks short codes", func(t *testing.T) {
		assert.Equal(t, "****", MaskCode("abc"))
	})
}
