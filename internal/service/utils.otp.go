package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// randomCode draws a code in [0, 10^digits) from the system CSPRNG and
// zero-pads it. rand.Int rejects and redraws internally, so the value is
// uniform over the range; the only failure mode is an unavailable
// entropy source, which propagates.
func randomCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil) // 10^digits
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("otp entropy source: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
