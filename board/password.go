package board

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// Passwords are peppered with an HMAC before bcrypt so that long passwords
// and long peppers stay within bcrypt's 72 byte input limit.
func peppered(pepper, password string) []byte {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

// HashPassword returns the salted bcrypt hash stored in a user record.
func HashPassword(pepper, password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword(peppered(pepper, password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, pepper, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), peppered(pepper, password)) == nil
}
