package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinLength is the shortest accepted plain password
const MinLength = 6

var ErrTooShort = errors.New("password too short")

// Hash returns the bcrypt hash of plain
func Hash(plain string) (string, error) {
	if len(plain) < MinLength {
		return "", ErrTooShort
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify reports whether plain matches hash
func Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
