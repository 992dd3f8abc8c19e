package utils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"

	"github.com/golang-jwt/jwt/v5"
)

// -----------------------------------------
// RSA-OAEP (SHA-256) challenge envelope
//   base64(std) of the raw ciphertext
// -----------------------------------------

// ParseRSAPublicKey parses a PEM-encoded RSA public key as stored on the
// agent row.
func ParseRSAPublicKey(pemStr string) (*rsa.PublicKey, error) {
	return jwt.ParseRSAPublicKeyFromPEM([]byte(pemStr))
}

// ParseRSAPrivateKey parses a PEM-encoded RSA private key. Used by agent-side
// tooling and tests; the server never holds agent private keys.
func ParseRSAPrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	return jwt.ParseRSAPrivateKeyFromPEM([]byte(pemStr))
}

// EncryptRSAOAEP encrypts plaintext under pub with OAEP/SHA-256 and returns
// a flat base64 string.
func EncryptRSAOAEP(pub *rsa.PublicKey, plaintext []byte) (string, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptRSAOAEP reverses EncryptRSAOAEP. Agent-side helper.
func DecryptRSAOAEP(priv *rsa.PrivateKey, encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, raw, nil)
}
