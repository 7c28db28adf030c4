package auth

import (
	"errors"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when a login password or TOTP code is wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials checks operator logins. With no password hash configured any
// user name is accepted; a configured TOTP secret always requires a code.
type Credentials struct {
	PasswordHash string // bcrypt
	TOTPSecret   string
}

// HasPassword reports whether a password is required.
func (c Credentials) HasPassword() bool {
	return c.PasswordHash != ""
}

// HasTOTP reports whether a TOTP code is required.
func (c Credentials) HasTOTP() bool {
	return c.TOTPSecret != ""
}

// Check validates a login attempt.
func (c Credentials) Check(password, code string) error {
	if c.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
			return ErrInvalidCredentials
		}
	}
	if c.HasTOTP() && !totp.Validate(code, c.TOTPSecret) {
		return ErrInvalidCredentials
	}
	return nil
}
