// services/jwt_assertion.go
//
// RFC 7523 JWT-bearer assertion verification. The pipeline order is
// security-sensitive and must not be rearranged:
//
//	parse (structural only)
//	-> read unverified iss, fetch that agent's public key   (caller)
//	-> verify signature against the fetched key
//	-> validate claims
//	-> cross-validate against the persisted truth challenge (caller supplies it)
//
// Nothing read before signature verification may influence any state or
// authorization decision; the unverified iss exists solely to pick a key.
package services

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/poofware/go-agent-auth/models"
	"github.com/poofware/go-agent-auth/utils"
)

// ParsedJwt is the structural decomposition of an assertion. Claims are NOT
// trustworthy until VerifyAssertionSignature and ValidateAssertionClaims
// have both passed.
type ParsedJwt struct {
	Header map[string]any
	Claims jwt.MapClaims

	// SigningString is the raw "header.payload" the signature covers.
	SigningString string
	// Signature holds the decoded third segment.
	Signature []byte
}

// ---------------------------------------------------------------------
// Structural parser
// ---------------------------------------------------------------------

// ParseJwtAssertion splits an assertion into its three segments and decodes
// header and claims. Any structural defect collapses to invalid_jwt_format;
// the parser makes no judgement about the content.
func ParseJwtAssertion(assertion string) (*ParsedJwt, error) {
	parts := strings.Split(assertion, ".")
	if len(parts) != 3 {
		return nil, utils.ErrInvalidJwtFormat
	}
	for _, part := range parts {
		if part == "" {
			return nil, utils.ErrInvalidJwtFormat
		}
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, utils.ErrInvalidJwtFormat
	}
	var header map[string]any
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, utils.ErrInvalidJwtFormat
	}

	claimBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, utils.ErrInvalidJwtFormat
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(claimBytes, &claims); err != nil {
		return nil, utils.ErrInvalidJwtFormat
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, utils.ErrInvalidJwtFormat
	}

	return &ParsedJwt{
		Header:        header,
		Claims:        claims,
		SigningString: parts[0] + "." + parts[1],
		Signature:     signature,
	}, nil
}

// ExtractAgentNameFromAssertion returns the UNVERIFIED iss claim. The only
// legitimate use is looking up which agent's public key to fetch before
// signature verification; trusting it for anything else is a bug.
func ExtractAgentNameFromAssertion(assertion string) (string, error) {
	parsed, err := ParseJwtAssertion(assertion)
	if err != nil {
		return "", err
	}
	iss, ok := parsed.Claims["iss"].(string)
	if !ok || strings.TrimSpace(iss) == "" {
		return "", utils.ErrMissingRequiredClaim
	}
	return iss, nil
}

// ---------------------------------------------------------------------
// Signature verifier
// ---------------------------------------------------------------------

// VerifyAssertionSignature checks the assertion's signature against the
// agent's registered key. The algorithm is pinned to RS256: "none", HS256 or
// anything else in the header is rejected outright, never "verified with
// whatever alg is present". Every failure maps to invalid_jwt_signature so
// attackers learn nothing from the error.
func VerifyAssertionSignature(parsed *ParsedJwt, agent *models.Agent) (jwt.MapClaims, error) {
	alg, _ := parsed.Header["alg"].(string)
	if alg != jwt.SigningMethodRS256.Alg() {
		return nil, utils.ErrInvalidJwtSignature
	}

	pub, err := utils.ParseRSAPublicKey(agent.PublicKey)
	if err != nil {
		return nil, utils.ErrInvalidJwtSignature
	}

	if err := jwt.SigningMethodRS256.Verify(parsed.SigningString, parsed.Signature, pub); err != nil {
		return nil, utils.ErrInvalidJwtSignature
	}
	return parsed.Claims, nil
}

// ---------------------------------------------------------------------
// Claims validator (RFC 7523)
// ---------------------------------------------------------------------

// ValidateAssertionClaims enforces the RFC 7523 claim set for a self-issued
// client assertion: iss, sub, aud, jti strings and exp numeric, iss == sub ==
// expectedIssuer (no delegation), aud == expectedAudience, exp in the future,
// nbf (when present) not in the future.
func ValidateAssertionClaims(claims jwt.MapClaims, expectedIssuer, expectedAudience string) (*models.JwtAssertionPayload, error) {
	iss, ok := claims["iss"].(string)
	if !ok {
		return nil, utils.ErrMissingRequiredClaim
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, utils.ErrMissingRequiredClaim
	}
	aud, ok := claims["aud"].(string)
	if !ok {
		return nil, utils.ErrMissingRequiredClaim
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, utils.ErrMissingRequiredClaim
	}
	jti, ok := claims["jti"].(string)
	if !ok {
		return nil, utils.ErrMissingRequiredClaim
	}

	if iss != expectedIssuer {
		return nil, utils.ErrInvalidClaimValue
	}
	// Self-asserted client credential: the subject must be the issuer itself.
	if sub != expectedIssuer {
		return nil, utils.ErrInvalidClaimValue
	}
	if aud != expectedAudience {
		return nil, utils.ErrInvalidClaimValue
	}

	now := time.Now().Unix()
	if int64(exp) <= now {
		return nil, utils.ErrJwtExpired
	}
	if nbf, isNum := claims["nbf"].(float64); isNum && int64(nbf) > now {
		return nil, utils.ErrJwtNotYetValid
	}

	payload := &models.JwtAssertionPayload{
		Issuer:    iss,
		Subject:   sub,
		Audience:  aud,
		ExpiresAt: int64(exp),
		JwtID:     jti,
	}
	if iat, isNum := claims["iat"].(float64); isNum {
		v := int64(iat)
		payload.IssuedAt = &v
	}
	if nbf, isNum := claims["nbf"].(float64); isNum {
		v := int64(nbf)
		payload.NotBefore = &v
	}
	return payload, nil
}

// ValidateJwtAssertion is the short-circuiting parse -> verify -> validate
// pipeline for one assertion against one already-fetched agent.
func ValidateJwtAssertion(assertion string, agent *models.Agent, expectedAudience string) (*models.JwtAssertionPayload, error) {
	parsed, err := ParseJwtAssertion(assertion)
	if err != nil {
		return nil, err
	}
	claims, err := VerifyAssertionSignature(parsed, agent)
	if err != nil {
		return nil, err
	}
	return ValidateAssertionClaims(claims, agent.AgentName, expectedAudience)
}

// ---------------------------------------------------------------------
// Cross-validator (anti-replay)
// ---------------------------------------------------------------------

// ValidateAssertionAgainstChallenge binds a fully verified assertion to the
// challenge record fetched fresh from storage. A valid signature alone is
// not proof: the jti must echo the nonce that was issued, to the agent it
// was issued to, inside its window, exactly once.
func ValidateAssertionAgainstChallenge(payload *models.JwtAssertionPayload, truth *models.AgentChallenge) error {
	if payload.JwtID != truth.Nonce {
		return utils.ErrNonceMismatch
	}
	if payload.Issuer != truth.AgentName {
		return utils.ErrInvalidIssuer
	}
	if truth.IsExpired() {
		return utils.ErrChallengeExpired
	}
	if truth.IsUsed() {
		return utils.ErrChallengeAlreadyUsed
	}
	return nil
}
