// Package auth holds the shared admin secret check. There are no user
// accounts; a single password gates the admin screens.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashPassword returns a salted hash encoded as "salt$hash", suitable
// for storing in config instead of the plaintext admin password.
func HashPassword(password string) string {
	salt := randomHex(8)
	h := sha256.Sum256([]byte(salt + password))
	return salt + "$" + hex.EncodeToString(h[:])
}

// CheckPassword validates a password against a salted hash in constant
// time.
func CheckPassword(password, stored string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 2 {
		return false
	}
	salt := parts[0]
	h := sha256.Sum256([]byte(salt + password))
	return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(h[:])), []byte(parts[1])) == 1
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "salt"
	}
	return hex.EncodeToString(buf)
}
