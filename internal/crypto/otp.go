package crypto

import (
	"crypto/rand"
	"crypto/subtle"
)

const (
	otpAlphabet = "0123456789"
	otpLength   = 6
)

// GenerateOTP returns a 6-digit recovery code drawn from crypto/rand.
// Rejection sampling keeps the digit distribution uniform: random bytes
// above the largest multiple of 10 are discarded instead of reduced mod 10.
func GenerateOTP() (string, error) {
	code := make([]byte, otpLength)
	buf := make([]byte, otpLength*2)

	for pos := 0; pos < otpLength; {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if pos == otpLength {
				break
			}
			if int(b) >= 250 { // 250 = 25 * len(otpAlphabet), largest usable bound
				continue
			}
			code[pos] = otpAlphabet[int(b)%len(otpAlphabet)]
			pos++
		}
	}

	return string(code), nil
}

// OTPEqual compares a submitted code against the stored one in constant
// time so an attacker cannot probe digit-by-digit.
func OTPEqual(submitted, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(stored)) == 1
}
