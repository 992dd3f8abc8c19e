package utils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func testKeyPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey returned error: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey returned error: %v", err)
	}
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestRSAOAEPRoundTrip(t *testing.T) {
	priv, pubPEM := testKeyPEM(t)

	pub, err := ParseRSAPublicKey(pubPEM)
	if err != nil {
		t.Fatalf("ParseRSAPublicKey returned error: %v", err)
	}

	plaintext := []byte(`{"nonce":"abc123"}`)
	encrypted, err := EncryptRSAOAEP(pub, plaintext)
	if err != nil {
		t.Fatalf("EncryptRSAOAEP returned error: %v", err)
	}

	decrypted, err := DecryptRSAOAEP(priv, encrypted)
	if err != nil {
		t.Fatalf("DecryptRSAOAEP returned error: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Fatalf("expected %q after round trip, got %q", plaintext, decrypted)
	}
}

func TestDecryptRSAOAEPWrongKey(t *testing.T) {
	_, pubPEM := testKeyPEM(t)
	otherPriv, _ := testKeyPEM(t)

	pub, err := ParseRSAPublicKey(pubPEM)
	if err != nil {
		t.Fatalf("ParseRSAPublicKey returned error: %v", err)
	}
	encrypted, err := EncryptRSAOAEP(pub, []byte("secret"))
	if err != nil {
		t.Fatalf("EncryptRSAOAEP returned error: %v", err)
	}

	if _, err := DecryptRSAOAEP(otherPriv, encrypted); err == nil {
		t.Fatal("expected decryption with the wrong key to fail")
	}
}

func TestParseRSAPublicKeyGarbage(t *testing.T) {
	if _, err := ParseRSAPublicKey("definitely not pem"); err == nil {
		t.Fatal("expected error for non-PEM input")
	}
	if _, err := ParseRSAPublicKey(""); err == nil {
		t.Fatal("expected error for empty input")
	}
}
