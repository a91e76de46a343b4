package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrEmptyKey = errors.New("empty key")

// Hash returns the bcrypt hash stored as admin.key_hash in the config.
func Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyKey
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func Verify(hash, plain string) bool {
	if hash == "" || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
