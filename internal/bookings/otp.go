package bookings

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
)

const otpDigits = 4

var otpSpace = big.NewInt(10000)

// newOTP returns a zero-padded random 4 digit code.
func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

func otpMatches(expected, submitted string) bool {
	submitted = strings.TrimSpace(submitted)
	if len(submitted) != otpDigits || len(expected) != otpDigits {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1
}
