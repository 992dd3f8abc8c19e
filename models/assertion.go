package models

import "time"

// ServerChallengePayload is the plaintext handed to an agent, always wrapped
// in RSA-OAEP under the agent's registered public key. It is never persisted
// and never validated server-side; the persisted AgentChallenge row is the
// only source of truth. Field spelling is the wire contract with agent SDKs.
type ServerChallengePayload struct {
	Audience  string    `json:"audience"`
	ExpiresAt time.Time `json:"expiresAt"`
	Issuer    string    `json:"issuer"`
	Nonce     string    `json:"nonce"`
}

// JwtAssertionPayload is the normalized claim set of a fully verified
// RFC 7523 client assertion. It only exists between signature/claim
// validation and cross-validation against the stored challenge.
type JwtAssertionPayload struct {
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	Audience  string `json:"aud"`
	ExpiresAt int64  `json:"exp"`
	JwtID     string `json:"jti"`
	IssuedAt  *int64 `json:"iat,omitempty"`
	NotBefore *int64 `json:"nbf,omitempty"`
}
