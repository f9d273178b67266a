// Package token encodes the challenge button payload.
//
// A token binds a button to one member of one chat:
//
//	v1:<userID>:<chatID>:<tag>
//
// where tag is the first 8 bytes of HMAC-SHA256(secret, "v1:<userID>:<chatID>")
// in unpadded base64url. The worst case (two negative 64-bit ids) is 56
// bytes, under Telegram's 64-byte callback data limit.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gatekeeper/internal/verification/models"
)

const (
	Prefix = "v1:"

	// MaxLen is the platform limit for callback payloads.
	MaxLen = 64

	tagLen = 8
)

var (
	ErrMalformed    = errors.New("malformed challenge token")
	ErrBadSignature = errors.New("challenge token signature mismatch")
)

// Codec signs and verifies challenge tokens.
type Codec struct {
	secret []byte
}

func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	return &Codec{secret: append([]byte(nil), secret...)}, nil
}

// RandomSecret returns a fresh 32-byte secret for deployments that do not
// configure one. Tokens issued before a restart stop validating, which only
// affects challenges that are lost on restart anyway.
func RandomSecret() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	return b, nil
}

// Encode returns the payload for the challenge addressed to key.
func (c *Codec) Encode(key models.Key) (string, error) {
	body := Prefix + strconv.FormatInt(key.UserID, 10) + ":" + strconv.FormatInt(key.ChatID, 10)
	out := body + ":" + c.tag(body)
	if len(out) > MaxLen {
		return "", fmt.Errorf("token length %d exceeds %d", len(out), MaxLen)
	}
	return out, nil
}

// Decode verifies a payload and returns the key it was issued for.
func (c *Codec) Decode(raw string) (models.Key, error) {
	if !IsChallenge(raw) || len(raw) > MaxLen {
		return models.Key{}, ErrMalformed
	}
	parts := strings.Split(strings.TrimPrefix(raw, Prefix), ":")
	if len(parts) != 3 {
		return models.Key{}, ErrMalformed
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return models.Key{}, fmt.Errorf("%w: user id", ErrMalformed)
	}
	chatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return models.Key{}, fmt.Errorf("%w: chat id", ErrMalformed)
	}
	body := Prefix + parts[0] + ":" + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(c.tag(body))) {
		return models.Key{}, ErrBadSignature
	}
	return models.NewKey(chatID, userID), nil
}

// IsChallenge reports whether a callback payload belongs to this codec's
// format. Other payloads are not ours to answer.
func IsChallenge(raw string) bool {
	return strings.HasPrefix(raw, Prefix)
}

func (c *Codec) tag(body string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:tagLen])
}
