// Package rand generates random tokens from crypto/rand.
package rand

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// RememberTokenBytes is the number of random bytes in a remember token.
const RememberTokenBytes = 32

// Bytes returns n random bytes.
func Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// String returns n random bytes, base64 URL encoded.
func String(n int) (string, error) {
	b, err := Bytes(n)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Hex returns n random bytes as 2n lowercase hex characters.
func Hex(n int) (string, error) {
	b, err := Bytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RememberToken returns a session token. It also serves as a pepper.
func RememberToken() (string, error) {
	return String(RememberTokenBytes)
}
