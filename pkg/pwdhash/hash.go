// Package pwdhash produces the password hashes stored in the staff table and
// in the server config (adminPasswordHash), and the hashed keys under which
// login sessions are stored.
package pwdhash

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// A stored hash is one version byte, then the salt, then the scrypt digest.
// The version byte lets us migrate staff passwords to stronger parameters
// later, without invalidating existing rows.
const (
	hashVersion = 1
	saltLen     = 16
	digestLen   = 32
	hashLen     = 1 + saltLen + digestLen
)

// Roughly 36 ms per derivation on 2020-era desktop hardware, which is the
// floor on a password guess regardless of rate limiting.
const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

func newSalt() []byte {
	salt := [saltLen]byte{}
	if n, _ := rand.Read(salt[:]); n != saltLen {
		panic("Error creating password salt")
	}
	return salt[:]
}

func hashWithSalt(salt []byte, password string) []byte {
	digest, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, digestLen)
	if err != nil {
		panic(fmt.Sprintf("Error hashing password: %v", err))
	}
	hash := make([]byte, 0, hashLen)
	hash = append(hash, hashVersion)
	hash = append(hash, salt...)
	return append(hash, digest...)
}

// HashPassword hashes a password with a fresh random salt
func HashPassword(password string) []byte {
	return hashWithSalt(newSalt(), password)
}

// HashPasswordBase64 is the form that goes into the staff table and the config
func HashPasswordBase64(password string) string {
	return base64.RawStdEncoding.EncodeToString(HashPassword(password))
}

// VerifyHash reports whether the password matches the stored hash.
// The digest comparison is constant time.
func VerifyHash(password string, hash []byte) bool {
	if len(hash) != hashLen || hash[0] != hashVersion {
		return false
	}
	salt := hash[1 : 1+saltLen]
	digest, _ := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, digestLen)
	return subtle.ConstantTimeCompare(digest, hash[1+saltLen:]) == 1
}

func VerifyHashBase64(password string, hashb64 string) bool {
	raw, _ := base64.RawStdEncoding.DecodeString(hashb64)
	return VerifyHash(password, raw)
}

// HashSessionToken is the key under which a session is stored. Only the
// client ever holds the plaintext token, so a leaked database cannot be
// replayed, and the DB's BTree lookup cannot leak token bytes through timing.
func HashSessionToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

func HashSessionTokenBase64(token string) string {
	return base64.RawStdEncoding.EncodeToString(HashSessionToken(token))
}
