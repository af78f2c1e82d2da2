package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generator returns a numeric code of the given width.
type Generator func(digits int) (string, error)

// RandomCode draws each digit uniformly from crypto/rand.
func RandomCode(digits int) (string, error) {
	if digits <= 0 {
		return "", fmt.Errorf("otp digits must be positive, got %d", digits)
	}
	ten := big.NewInt(10)
	buf := make([]byte, digits)
	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}
