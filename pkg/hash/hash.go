// Package hash wraps password hashing so domain code never touches the
// underlying algorithm directly.
package hash

import "golang.org/x/crypto/bcrypt"

// Password hashes a plaintext password for storage.
func Password(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches the stored hash.
// A mismatch returns a non-nil error.
func Verify(password, hashed string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
}
