// Package tokencrypto generates opaque bearer tokens and the keyed digests
// stored in their place.
package tokencrypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/aliuyar1234/sanctus/internal/apperrors"
)

// DefaultTokenSize provides 256 bits of entropy (43 chars base64url).
const DefaultTokenSize = 32

// GenerateClearToken returns size random bytes encoded as base64url without padding.
func GenerateClearToken(size int) (string, error) {
	if size <= 0 {
		return "", apperrors.New(apperrors.KindInvalidArgument, fmt.Sprintf("token size must be positive, got %d", size))
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hasher computes HMAC-SHA256 digests keyed by a server-side pepper.
// The same clear token always yields the same hash so rows can be looked up by it.
type Hasher struct {
	pepper []byte
}

func NewHasher(pepper string) *Hasher {
	return &Hasher{pepper: []byte(pepper)}
}

// HashToken returns the base64url digest of clear (43 chars).
func (h *Hasher) HashToken(clear string) string {
	return base64.RawURLEncoding.EncodeToString(h.sum(clear))
}

// VerifyToken reports whether clear hashes to storedHash, in constant time.
func (h *Hasher) VerifyToken(clear, storedHash string) bool {
	want, err := base64.RawURLEncoding.DecodeString(storedHash)
	if err != nil {
		return false
	}
	return hmac.Equal(h.sum(clear), want)
}

func (h *Hasher) sum(clear string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(clear))
	return mac.Sum(nil)
}
