package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// ErrStateMismatch tags an OAuth callback whose state parameter does not
// match the anti-forgery cookie. The caller decides whether to treat it as
// fatal (strict) or as a warning (lenient, for WebViews that drop cookies).
var ErrStateMismatch = errors.New("auth: oauth state mismatch")

// NewState returns a random anti-forgery state parameter.
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// VerifyState compares the callback state to the cookie value.
func VerifyState(got, want string) error {
	if want == "" || got != want {
		return ErrStateMismatch
	}
	return nil
}
