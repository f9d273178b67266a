package token

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/verification/models"
)

func newCodec(t *testing.T, secret string) *Codec {
	t.Helper()
	c, err := NewCodec([]byte(secret))
	require.NoError(t, err)
	return c
}

func TestCodecRoundTrip(t *testing.T) {
	c := newCodec(t, "s3cret")
	keys := []models.Key{
		models.NewKey(-1001234567890, 7705404439),
		models.NewKey(100, 1),
		models.NewKey(math.MinInt64, math.MinInt64),
		models.NewKey(math.MaxInt64, math.MaxInt64),
	}
	for _, key := range keys {
		raw, err := c.Encode(key)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(raw), MaxLen, "token %q too long", raw)
		assert.True(t, IsChallenge(raw))

		got, err := c.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, key, got)
	}
}

func TestDecodeRejectsTampering(t *testing.T) {
	c := newCodec(t, "s3cret")
	raw, err := c.Encode(models.NewKey(-100, 42))
	require.NoError(t, err)

	t.Run("other user id", func(t *testing.T) {
		forged := strings.Replace(raw, ":42:", ":43:", 1)
		_, err := c.Decode(forged)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("other secret", func(t *testing.T) {
		_, err := newCodec(t, "different").Decode(raw)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("missing tag", func(t *testing.T) {
		_, err := c.Decode("v1:42:-100")
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("foreign payload", func(t *testing.T) {
		_, err := c.Decode("captcha_pass_42_-100")
		assert.ErrorIs(t, err, ErrMalformed)
		assert.False(t, IsChallenge("captcha_pass_42_-100"))
	})

	t.Run("non numeric id", func(t *testing.T) {
		_, err := c.Decode("v1:abc:-100:AAAAAAAAAAA")
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestNewCodecRequiresSecret(t *testing.T) {
	_, err := NewCodec(nil)
	assert.Error(t, err)

	secret, err := RandomSecret()
	require.NoError(t, err)
	assert.Len(t, secret, 32)
}
