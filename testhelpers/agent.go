// testhelpers/agent.go
package testhelpers

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/poofware/go-agent-auth/models"
)

// GenerateAgentKeyPair returns a fresh RSA key pair with the public half
// PEM-encoded the way agents register it.
func GenerateAgentKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "Failed to generate test RSA key")

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err, "Failed to marshal test public key")

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return priv, string(pemBytes)
}

// NewTestAgent builds a registered agent backed by a fresh key pair.
func NewTestAgent(t *testing.T, agentName string) (*models.Agent, *rsa.PrivateKey) {
	priv, publicPEM := GenerateAgentKeyPair(t)
	now := time.Now().UTC()
	agent := &models.Agent{
		ID:        uuid.New(),
		AgentName: agentName,
		PublicKey: publicPEM,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return agent, priv
}

// SignAssertion signs claims as an RS256 client assertion the way an agent
// SDK would.
func SignAssertion(t *testing.T, priv *rsa.PrivateKey, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(priv)
	require.NoError(t, err, "Failed to sign test assertion")
	return signed
}

// RawSegment base64url-encodes the JSON of v, for building malformed or
// alg-tampered tokens segment by segment.
func RawSegment(t *testing.T, v any) string {
	b, err := json.Marshal(v)
	require.NoError(t, err, "Failed to marshal test segment")
	return base64.RawURLEncoding.EncodeToString(b)
}
