package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SecretHasher produces deterministic keyed digests of OTP codes and
// session tokens. Determinism matters: stored digests are looked up by
// equality, never compared row by row.
type SecretHasher struct {
	secret []byte
}

func NewSecretHasher(secret string) (*SecretHasher, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &SecretHasher{secret: []byte(secret)}, nil
}

// HashOTP digests a code together with the email it was issued for, so
// the same code issued to two addresses never collides.
func (h *SecretHasher) HashOTP(email, code string) string {
	return h.digest(email + ":" + code)
}

func (h *SecretHasher) HashToken(token string) string {
	return h.digest(token)
}

func (h *SecretHasher) digest(input string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(input))
	return hex.EncodeToString(mac.Sum(nil))
}
