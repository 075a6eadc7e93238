// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const randomCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func GenerateRandomString(length int) (string, error) {
	var sb strings.Builder
	sb.Grow(length)

	max := big.NewInt(int64(len(randomCharset)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(randomCharset[n.Int64()])
	}

	return sb.String(), nil
}

// NewOrderID returns a merchant order id accepted by the redirect gateway
// (6-64 characters of letters, digits, '-' and '_').
func NewOrderID() string {
	return "order-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewIdempotencyKey is used when a client does not supply its own key.
func NewIdempotencyKey(prefix string) string {
	suffix, err := GenerateRandomString(32)
	if err != nil {
		suffix = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return prefix + "-" + suffix
}
