package signing_test

import (
	"regexp"
	"testing"

	"github.com/shohag/hookline/internal/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	payload := []byte(`{"event":"application.created","data":{"id":1}}`)
	secret := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	t.Run("deterministic", func(t *testing.T) {
		first := signing.Sign(secret, payload)
		second := signing.Sign(secret, payload)
		assert.Equal(t, first, second)
	})

	t.Run("64 lowercase hex characters", func(t *testing.T) {
		sig := signing.Sign(secret, payload)
		require.Len(t, sig, 64)
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), sig)
	})

	t.Run("depends on secret", func(t *testing.T) {
		assert.NotEqual(t, signing.Sign(secret, payload), signing.Sign("other-secret", payload))
	})

	t.Run("depends on payload", func(t *testing.T) {
		assert.NotEqual(t, signing.Sign(secret, payload), signing.Sign(secret, []byte(`{}`)))
	})
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"event":"interview.completed"}`)
	secret := "secret"

	t.Run("accepts matching signature", func(t *testing.T) {
		sig := signing.Sign(secret, payload)
		assert.True(t, signing.Verify(secret, payload, sig))
	})

	t.Run("rejects tampered payload", func(t *testing.T) {
		sig := signing.Sign(secret, payload)
		assert.False(t, signing.Verify(secret, []byte(`{"event":"interview.cancelled"}`), sig))
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		sig := signing.Sign(secret, payload)
		assert.False(t, signing.Verify("wrong", payload, sig))
	})
}
